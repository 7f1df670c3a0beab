package pdfdoc

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// Decode returns the decoded payload of s. Only FlateDecode (with optional
// PNG predictors) is supported, which covers xref and object streams.
func (d *Document) Decode(s *Stream) ([]byte, error) {
	filters := d.Resolve(s.Dict.Get("Filter"))
	params := d.Resolve(s.Dict.Get("DecodeParms"))

	var names []Name
	var paramList []Object
	switch f := filters.(type) {
	case nil:
		return s.Data, nil
	case Name:
		names = []Name{f}
		paramList = []Object{params}
	case Array:
		for i, item := range f {
			n, ok := d.Resolve(item).(Name)
			if !ok {
				return nil, fmt.Errorf("filter entry %d is not a name", i)
			}
			names = append(names, n)
			if arr, ok := params.(Array); ok && i < len(arr) {
				paramList = append(paramList, d.Resolve(arr[i]))
			} else {
				paramList = append(paramList, nil)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported /Filter value %T", filters)
	}

	data := s.Data
	for i, name := range names {
		if name != "FlateDecode" && name != "Fl" {
			return nil, fmt.Errorf("unsupported filter %s", name)
		}
		out, err := inflate(data)
		if err != nil {
			return nil, err
		}
		if pd, ok := paramList[i].(*Dict); ok {
			out, err = unpredict(out, pd)
			if err != nil {
				return nil, err
			}
		}
		data = out
	}
	return data, nil
}

func inflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

// Deflate compresses data for a FlateDecode stream.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return buf.Bytes()
}

func unpredict(data []byte, params *Dict) ([]byte, error) {
	predictor, _ := AsInt(params.Get("Predictor"))
	if predictor < 10 {
		return data, nil
	}
	columns := int64(1)
	if c, ok := AsInt(params.Get("Columns")); ok && c > 0 {
		columns = c
	}
	colors := int64(1)
	if c, ok := AsInt(params.Get("Colors")); ok && c > 0 {
		colors = c
	}
	bpc := int64(8)
	if b, ok := AsInt(params.Get("BitsPerComponent")); ok && b > 0 {
		bpc = b
	}
	bpp := int((colors*bpc + 7) / 8)
	rowLen := int((columns*colors*bpc + 7) / 8)
	stride := rowLen + 1
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("predictor: data length %d is not a multiple of row size %d", len(data), stride)
	}

	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	for off := 0; off < len(data); off += stride {
		filter := data[off]
		row := append([]byte(nil), data[off+1:off+stride]...)
		for i := range row {
			var left, up, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up = prev[i]
			switch filter {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("predictor: unknown PNG filter %d", filter)
			}
		}
		out = append(out, row...)
		prev = row
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	default:
		return c
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
