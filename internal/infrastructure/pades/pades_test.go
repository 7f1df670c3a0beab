package pades

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/infrastructure/identity"
	"github.com/kirillkom/contract-signer/internal/infrastructure/pdfdoc/pdftest"
)

func issue(t *testing.T, name, email string) *domain.EphemeralIdentity {
	t.Helper()
	id, err := identity.NewIssuer(0, "pw", nil).Issue(context.Background(), name, email, "")
	require.NoError(t, err)
	return id
}

func samplePDF(xrefStream bool) []byte {
	return pdftest.BuildWith(pdftest.Options{XRefStream: xrefStream}, pdftest.Page{
		Texts: []pdftest.Text{{X: 72, Y: 700, Size: 12, Value: "Contract"}},
	})
}

func TestSignAndInspect(t *testing.T) {
	for _, tc := range []struct {
		name       string
		xrefStream bool
	}{
		{name: "xref table"},
		{name: "xref stream", xrefStream: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := samplePDF(tc.xrefStream)
			id := issue(t, "Alice Martin", "alice@example.com")
			s := NewSigner(nil)

			signed, err := s.Sign(context.Background(), src, id, domain.SignatureMeta{
				Role:        domain.RoleA,
				SignerName:  "Alice Martin",
				SignerEmail: "alice@example.com",
				Reason:      "Approval",
				SignedAt:    time.Now(),
			})
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(signed, src), "signing must append, not rewrite")

			sigs, err := s.Inspect(context.Background(), signed)
			require.NoError(t, err)
			require.Len(t, sigs, 1)
			got := sigs[0]
			assert.Empty(t, got.Error)
			assert.True(t, got.DigestValid)
			assert.True(t, got.CoversToEOF)
			assert.NotEmpty(t, got.FieldName)
			assert.NotEmpty(t, got.SubFilter)
			assert.Equal(t, "Alice Martin", got.SignerName)
			assert.Equal(t, id.Fingerprint, got.Fingerprint)
			require.Len(t, got.ByteRange, 4)
			assert.Zero(t, got.ByteRange[0])
		})
	}
}

func TestSecondSignatureKeepsFirstDigest(t *testing.T) {
	s := NewSigner(nil)
	first, err := s.Sign(context.Background(), samplePDF(false), issue(t, "A", "a@example.com"),
		domain.SignatureMeta{Role: domain.RoleA, SignerName: "A"})
	require.NoError(t, err)
	second, err := s.Sign(context.Background(), first, issue(t, "B", "b@example.com"),
		domain.SignatureMeta{Role: domain.RoleB, SignerName: "B"})
	require.NoError(t, err)

	sigs, err := s.Inspect(context.Background(), second)
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	assert.NotEqual(t, sigs[0].FieldName, sigs[1].FieldName)
	bySigner := map[string]domain.EmbeddedSignature{}
	for _, sig := range sigs {
		bySigner[sig.SignerName] = sig
	}
	assert.True(t, bySigner["A"].DigestValid)
	assert.False(t, bySigner["A"].CoversToEOF)
	assert.True(t, bySigner["B"].DigestValid)
	assert.True(t, bySigner["B"].CoversToEOF)
	assert.True(t, bytes.HasPrefix(second, first))
}

func TestInspectDetectsTampering(t *testing.T) {
	s := NewSigner(nil)
	signed, err := s.Sign(context.Background(), samplePDF(false), issue(t, "A", "a@example.com"),
		domain.SignatureMeta{Role: domain.RoleA})
	require.NoError(t, err)

	// Byte 10 sits in the binary header comment and is covered by the range.
	signed[10] ^= 0x01
	sigs, err := s.Inspect(context.Background(), signed)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.False(t, sigs[0].DigestValid)
	assert.NotEmpty(t, sigs[0].Error)
}

func TestInspectUnsignedPDF(t *testing.T) {
	sigs, err := NewSigner(nil).Inspect(context.Background(), samplePDF(false))
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestSignRejectsMissingIdentity(t *testing.T) {
	_, err := NewSigner(nil).Sign(context.Background(), samplePDF(false), nil, domain.SignatureMeta{})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrSigning))
}
