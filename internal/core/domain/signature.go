package domain

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// Role identifies one of the two signing parties.
type Role string

const (
	RoleA Role = "a"
	RoleB Role = "b"
)

func Roles() []Role { return []Role{RoleA, RoleB} }

func ParseRole(v string) (Role, error) {
	switch Role(v) {
	case RoleA, RoleB:
		return Role(v), nil
	default:
		return "", fmt.Errorf("%w: unknown signer role %q", ErrInvalidInput, v)
	}
}

// Index is the 1-based position of the role, used in filenames and field names.
func (r Role) Index() int {
	if r == RoleB {
		return 2
	}
	return 1
}

// MarkerPosition is a located marker bounding box in PDF user space.
type MarkerPosition struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SignatureData is the per-document JSON bag of visual signing state.
type SignatureData struct {
	Images          map[Role]string           `json:"images,omitempty"`
	Fingerprints    map[Role]string           `json:"fingerprints,omitempty"`
	MarkerPositions map[Role][]MarkerPosition `json:"marker_positions,omitempty"`
}

// SignatureRecord is appended once per role when that role signs.
type SignatureRecord struct {
	SignerRole              Role      `json:"signer_role"`
	SignerName              string    `json:"signer_name"`
	SignerEmail             string    `json:"signer_email"`
	SignedAt                time.Time `json:"signed_at"`
	CertificateFingerprint  string    `json:"certificate_fingerprint"`
	CertificatePEM          string    `json:"certificate_pem,omitempty"`
	DocumentHashBeforeSign  string    `json:"document_hash_before_sign"`
	VisualSignatureIncluded bool      `json:"visual_signature_included"`
}

// EphemeralIdentity is a one-shot signing identity. Only the PEM and
// fingerprint outlive the signing call.
type EphemeralIdentity struct {
	PrivateKey     crypto.Signer
	Certificate    *x509.Certificate
	PKCS12         []byte
	Password       string
	CertificatePEM string
	Fingerprint    string
}

// SignatureMeta is written into the PDF signature dictionary.
type SignatureMeta struct {
	Role        Role
	SignerName  string
	SignerEmail string
	Reason      string
	Location    string
	SignedAt    time.Time
}

type VerificationStatus string

const (
	VerificationUnsigned         VerificationStatus = "unsigned"
	VerificationPartiallySigned  VerificationStatus = "partially_signed"
	VerificationFullySignedValid VerificationStatus = "fully_signed_valid"
	VerificationFullySignedIssue VerificationStatus = "fully_signed_issues"
)

// SignatureCheck is the verification outcome for one record.
type SignatureCheck struct {
	Role             Role       `json:"role"`
	SignerName       string     `json:"signer_name"`
	SignerEmail      string     `json:"signer_email"`
	SignedAt         time.Time  `json:"signed_at"`
	Fingerprint      string     `json:"certificate_fingerprint"`
	NotBefore        *time.Time `json:"not_before,omitempty"`
	NotAfter         *time.Time `json:"not_after,omitempty"`
	CertificateValid bool       `json:"certificate_valid"`
	IntegrityValid   bool       `json:"integrity_valid"`
	Valid            bool       `json:"valid"`
	Issues           []string   `json:"issues,omitempty"`
}

// EmbeddedSignature describes a CMS signature found inside the PDF bytes.
type EmbeddedSignature struct {
	FieldName   string  `json:"field_name"`
	SignerName  string  `json:"signer_name,omitempty"`
	SubFilter   string  `json:"sub_filter"`
	ByteRange   []int64 `json:"byte_range"`
	CoversToEOF bool    `json:"covers_to_eof"`
	DigestValid bool    `json:"digest_valid"`
	Fingerprint string  `json:"certificate_fingerprint,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// VerificationReport aggregates record checks for a document.
type VerificationReport struct {
	DocumentID string              `json:"document_id"`
	Valid      bool                `json:"valid"`
	Status     VerificationStatus  `json:"status"`
	Signatures []SignatureCheck    `json:"signatures"`
	Embedded   []EmbeddedSignature `json:"embedded,omitempty"`
	CheckedAt  time.Time           `json:"checked_at"`
}

// Clone returns a copy whose maps can be mutated independently.
func (s SignatureData) Clone() SignatureData {
	out := SignatureData{
		Images:          make(map[Role]string, len(s.Images)),
		Fingerprints:    make(map[Role]string, len(s.Fingerprints)),
		MarkerPositions: make(map[Role][]MarkerPosition, len(s.MarkerPositions)),
	}
	for k, v := range s.Images {
		out.Images[k] = v
	}
	for k, v := range s.Fingerprints {
		out.Fingerprints[k] = v
	}
	for k, v := range s.MarkerPositions {
		out.MarkerPositions[k] = append([]MarkerPosition(nil), v...)
	}
	return out
}

// ParseCertificatePEM decodes the first block of data, which must be a
// CERTIFICATE.
func ParseCertificatePEM(data string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no certificate PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}
