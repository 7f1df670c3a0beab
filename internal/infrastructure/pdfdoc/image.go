package pdfdoc

import (
	"image"
	"image/color"
)

// AddImage stores img as a Flate-compressed RGB image XObject. Transparency
// is kept in a DeviceGray soft mask.
func (u *Update) AddImage(img image.Image) Ref {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rgb := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	opaque := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}

	dict := D(
		"Type", Name("XObject"),
		"Subtype", Name("Image"),
		"Width", Integer(w),
		"Height", Integer(h),
		"ColorSpace", Name("DeviceRGB"),
		"BitsPerComponent", Integer(8),
		"Filter", Name("FlateDecode"),
	)
	if !opaque {
		mask := u.Add(&Stream{
			Dict: D(
				"Type", Name("XObject"),
				"Subtype", Name("Image"),
				"Width", Integer(w),
				"Height", Integer(h),
				"ColorSpace", Name("DeviceGray"),
				"BitsPerComponent", Integer(8),
				"Filter", Name("FlateDecode"),
			),
			Data: Deflate(alpha),
		})
		dict.Set("SMask", mask)
	}
	return u.Add(&Stream{Dict: dict, Data: Deflate(rgb)})
}
