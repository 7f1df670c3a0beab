// Package pades embeds and inspects CAdES-detached signatures in PDF files.
package pades

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"log/slog"

	"github.com/digitorus/pdfsign"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// Signer appends one approval signature per call as an incremental update.
type Signer struct {
	logger *slog.Logger
}

func NewSigner(logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{logger: logger}
}

func (s *Signer) Sign(ctx context.Context, data []byte, id *domain.EphemeralIdentity, meta domain.SignatureMeta) ([]byte, error) {
	if id == nil {
		return nil, domain.WrapError(domain.ErrSigning, "sign pdf", fmt.Errorf("identity is required"))
	}
	key, cert, err := unlock(id)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "unlock identity", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := pdfsign.Open(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "open pdf", err)
	}
	b := doc.Sign(key, cert)
	if meta.SignerName != "" {
		b.SignerName(meta.SignerName)
	}
	if meta.Reason != "" {
		b.Reason(meta.Reason)
	}
	if meta.Location != "" {
		b.Location(meta.Location)
	}

	var out bytes.Buffer
	out.Grow(len(data) + 32<<10)
	if _, err := doc.Write(&out); err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "write signature", err)
	}

	s.logger.Info("pdf_signed",
		"role", string(meta.Role),
		"signer", cert.Subject.CommonName,
		"size", out.Len(),
	)
	return out.Bytes(), nil
}

func unlock(id *domain.EphemeralIdentity) (crypto.Signer, *x509.Certificate, error) {
	if len(id.PKCS12) == 0 {
		if id.PrivateKey == nil || id.Certificate == nil {
			return nil, nil, fmt.Errorf("identity has neither a pkcs12 container nor a key pair")
		}
		return id.PrivateKey, id.Certificate, nil
	}
	raw, cert, err := pkcs12.Decode(id.PKCS12, id.Password)
	if err != nil {
		return nil, nil, err
	}
	key, ok := raw.(crypto.Signer)
	if !ok {
		return nil, nil, fmt.Errorf("pkcs12 key %T cannot sign", raw)
	}
	return key, cert, nil
}
