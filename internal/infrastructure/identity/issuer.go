package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/mail"
	"strings"
	"time"

	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

const (
	DefaultKeyBits = 2048
	validity       = 1 // years
	clockSkew      = time.Minute
)

var (
	oidEmailAddress    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
	oidDocumentSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 10, 3, 12}
)

// Issuer mints a fresh self-signed identity for every signing call.
type Issuer struct {
	keyBits  int
	password string
	rand     io.Reader
	now      func() time.Time
}

func NewIssuer(keyBits int, password string, now func() time.Time) *Issuer {
	if keyBits < DefaultKeyBits {
		keyBits = DefaultKeyBits
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{keyBits: keyBits, password: password, rand: rand.Reader, now: now}
}

func (i *Issuer) Issue(ctx context.Context, name, email, organization string) (*domain.EphemeralIdentity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "issue certificate", fmt.Errorf("signer name is required"))
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "issue certificate", fmt.Errorf("signer email %q: %w", email, err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := rsa.GenerateKey(i.rand, i.keyBits)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "generate key", err)
	}
	serial, err := i.serial()
	if err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "generate serial", err)
	}

	subject := pkix.Name{
		CommonName: name,
		ExtraNames: []pkix.AttributeTypeAndValue{{Type: oidEmailAddress, Value: email}},
	}
	if org := strings.TrimSpace(organization); org != "" {
		subject.Organization = []string{org}
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		EmailAddresses:        []string{email},
		NotBefore:             issuedAt.Add(-clockSkew),
		NotAfter:              issuedAt.AddDate(validity, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		UnknownExtKeyUsage:    []asn1.ObjectIdentifier{oidDocumentSigning},
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	der, err := x509.CreateCertificate(i.rand, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "create certificate", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "parse certificate", err)
	}
	pfx, err := pkcs12.Modern.Encode(key, cert, nil, i.password)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSigning, "encode pkcs12", err)
	}

	return &domain.EphemeralIdentity{
		PrivateKey:     key,
		Certificate:    cert,
		PKCS12:         pfx,
		Password:       i.password,
		CertificatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		Fingerprint:    Fingerprint(der),
	}, nil
}

// serial combines the issuance time with 64 random bits.
func (i *Issuer) serial() (*big.Int, error) {
	random, err := rand.Int(i.rand, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, err
	}
	serial := new(big.Int).Lsh(big.NewInt(i.now().UnixNano()), 64)
	return serial.Or(serial, random), nil
}

// Fingerprint is the lowercase hex SHA-256 of a DER certificate.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}
