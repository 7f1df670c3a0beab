package pades

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/hex"
	"fmt"

	pdflib "github.com/digitorus/pdf"
	"github.com/digitorus/pdfsign"
	"github.com/digitorus/pkcs7"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// Inspect lists the signature fields of data and checks each digest.
// Per-signature problems are reported in EmbeddedSignature.Error.
func (s *Signer) Inspect(ctx context.Context, data []byte) ([]domain.EmbeddedSignature, error) {
	doc, err := pdfsign.Open(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}
	fields := doc.Reader().Trailer().Key("Root").Key("AcroForm").Key("Fields")

	out := make([]domain.EmbeddedSignature, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		field := fields.Index(i)
		value := field.Key("V")
		if value.Kind() != pdflib.Dict {
			continue
		}
		if field.Key("FT").Name() != "Sig" && value.Key("Type").Name() != "Sig" {
			continue
		}
		out = append(out, inspectField(data, field, value))
	}
	return out, nil
}

func inspectField(data []byte, field, value pdflib.Value) domain.EmbeddedSignature {
	sig := domain.EmbeddedSignature{
		FieldName:  field.Key("T").Text(),
		SignerName: value.Key("Name").Text(),
		SubFilter:  value.Key("SubFilter").Name(),
	}

	ranges := value.Key("ByteRange")
	for j := 0; j < ranges.Len(); j++ {
		sig.ByteRange = append(sig.ByteRange, ranges.Index(j).Int64())
	}
	content, err := coveredBytes(data, sig.ByteRange)
	if err != nil {
		sig.Error = err.Error()
		return sig
	}
	sig.CoversToEOF = sig.ByteRange[2]+sig.ByteRange[3] == int64(len(data))

	contents := []byte(value.Key("Contents").RawString())
	if len(contents) == 0 {
		sig.Error = "signature has no contents"
		return sig
	}
	// The reserved space is zero padded past the DER structure.
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(contents, &raw); err != nil {
		sig.Error = fmt.Sprintf("parse cms envelope: %v", err)
		return sig
	}
	p7, err := pkcs7.Parse(raw.FullBytes)
	if err != nil {
		sig.Error = fmt.Sprintf("parse cms: %v", err)
		return sig
	}
	if signer := p7.GetOnlySigner(); signer != nil {
		sum := sha256.Sum256(signer.Raw)
		sig.Fingerprint = hex.EncodeToString(sum[:])
		if sig.SignerName == "" {
			sig.SignerName = signer.Subject.CommonName
		}
	}
	p7.Content = content
	if err := p7.Verify(); err != nil {
		sig.Error = fmt.Sprintf("verify cms: %v", err)
		return sig
	}
	sig.DigestValid = true
	return sig
}

func coveredBytes(data []byte, br []int64) ([]byte, error) {
	if len(br) != 4 {
		return nil, fmt.Errorf("byte range has %d entries, want 4", len(br))
	}
	size := int64(len(data))
	var out []byte
	for i := 0; i < len(br); i += 2 {
		off, n := br[i], br[i+1]
		if off < 0 || n < 0 || off+n > size {
			return nil, fmt.Errorf("byte range [%d %d] outside file of %d bytes", off, n, size)
		}
		out = append(out, data[off:off+n]...)
	}
	return out, nil
}
