package usecase

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
)

type repoFake struct {
	docs      map[string]*domain.GeneratedDocument
	createErr error
	updateErr error
	updates   int
}

func newRepoFake(docs ...*domain.GeneratedDocument) *repoFake {
	f := &repoFake{docs: map[string]*domain.GeneratedDocument{}}
	for _, d := range docs {
		cp := *d
		f.docs[d.ID] = &cp
	}
	return f
}

func (f *repoFake) Create(_ context.Context, doc *domain.GeneratedDocument) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.GeneratedDocument, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.NotFoundError("document", id)
	}
	cp := *doc
	return &cp, nil
}

func (f *repoFake) Update(_ context.Context, doc *domain.GeneratedDocument) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	current, ok := f.docs[doc.ID]
	if !ok {
		return domain.NotFoundError("document", doc.ID)
	}
	if current.Version != doc.Version {
		return domain.WrapError(domain.ErrConflict, "update document", errors.New("version mismatch"))
	}
	doc.Version++
	cp := *doc
	f.docs[doc.ID] = &cp
	f.updates++
	return nil
}

type templateFake struct {
	tmpl  *domain.Template
	calls int
}

func (f *templateFake) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	f.calls++
	if f.tmpl == nil || f.tmpl.ID != id {
		return nil, domain.NotFoundError("template", id)
	}
	return f.tmpl, nil
}

type projectFake struct {
	project *domain.Project
}

func (f *projectFake) GetProject(_ context.Context, id string) (*domain.Project, error) {
	if f.project == nil || f.project.ID != id {
		return nil, domain.NotFoundError("project", id)
	}
	return f.project, nil
}

type storageFake struct {
	blobs   map[string][]byte
	deleted []string
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{blobs: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.blobs[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.blobs[key]
	if !ok {
		return nil, domain.NotFoundError("artifact", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.blobs, key)
	return nil
}

type eventsFake struct {
	events []domain.DocumentEvent
	err    error
}

func (f *eventsFake) PublishDocumentEvent(_ context.Context, event domain.DocumentEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type tokensFake struct{}

func (tokensFake) Tokens(p *domain.Project) domain.DataRecord {
	return domain.DataRecord{"project_title": p.Title}
}

type rendererFake struct {
	roles   []domain.Role
	markers map[string]domain.Role
	err     error
	calls   int
}

func (f *rendererFake) Render(template []byte, data domain.DataRecord) (*ports.RenderedTemplate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ports.RenderedTemplate{
		Content:    append(append([]byte(nil), template...), data["project_title"]...),
		Roles:      f.roles,
		MarkerRole: f.markers,
	}, nil
}

type converterFake struct {
	err error
}

func (f *converterFake) Convert(_ context.Context, document []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("%PDF-"), document...), nil
}

type locatorFake struct {
	found map[string][]domain.MarkerPosition
	errs  map[string]error
}

func (f *locatorFake) Locate(_ context.Context, _ []byte, marker string) ([]domain.MarkerPosition, error) {
	if err := f.errs[marker]; err != nil {
		return nil, err
	}
	return f.found[marker], nil
}

type compositeCall struct {
	positions map[domain.Role][]domain.MarkerPosition
	images    map[domain.Role][]byte
}

type compositorFake struct {
	calls []compositeCall
	err   error
}

func (f *compositorFake) Composite(pdf []byte, positions map[domain.Role][]domain.MarkerPosition, images map[domain.Role][]byte) ([]byte, error) {
	f.calls = append(f.calls, compositeCall{positions: positions, images: images})
	if f.err != nil {
		return nil, f.err
	}
	roles := make([]string, 0, len(images))
	for r := range images {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	return append(append([]byte(nil), pdf...), "|img:"+strings.Join(roles, ",")...), nil
}

type issuerFake struct {
	err error
}

func (f *issuerFake) Issue(_ context.Context, name, email, _ string) (*domain.EphemeralIdentity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.EphemeralIdentity{
		Fingerprint:    "fp-" + name,
		CertificatePEM: "",
	}, nil
}

type signerFake struct {
	signed []string
	err    error
}

func (f *signerFake) Sign(_ context.Context, pdf []byte, _ *domain.EphemeralIdentity, meta domain.SignatureMeta) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.signed = append(f.signed, string(pdf))
	return append(append([]byte(nil), pdf...), "|signed:"+string(meta.Role)...), nil
}

type inspectorFake struct {
	result []domain.EmbeddedSignature
	err    error
	seen   []byte
}

func (f *inspectorFake) Inspect(_ context.Context, pdf []byte) ([]domain.EmbeddedSignature, error) {
	f.seen = pdf
	return f.result, f.err
}

func certPEM(t *testing.T, notBefore, notAfter time.Time) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "test signer"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

type fixture struct {
	repo       *repoFake
	templates  *templateFake
	projects   *projectFake
	storage    *storageFake
	events     *eventsFake
	renderer   *rendererFake
	locator    *locatorFake
	compositor *compositorFake
	signer     *signerFake
	pipeline   *Pipeline
	stages     []string
}

func newFixture(roles ...domain.Role) *fixture {
	f := &fixture{
		repo: newRepoFake(),
		templates: &templateFake{tmpl: &domain.Template{
			ID: "tpl-1", Name: "Contrat de travaux", Type: domain.DocumentTypeContract, Content: []byte("docx:"),
		}},
		projects:   &projectFake{project: &domain.Project{ID: "prj-1", Title: "Rénovation Été"}},
		storage:    newStorageFake(),
		events:     &eventsFake{},
		renderer:   &rendererFake{roles: roles, markers: map[string]domain.Role{}},
		locator:    &locatorFake{found: map[string][]domain.MarkerPosition{}},
		compositor: &compositorFake{},
		signer:     &signerFake{},
	}
	for _, r := range roles {
		marker := fmt.Sprintf("ZZSIG%s%dZZ", strings.ToUpper(string(r)), r.Index())
		f.renderer.markers[marker] = r
		f.locator.found[marker] = []domain.MarkerPosition{{Page: 1, X: 100, Y: float64(100 * r.Index()), Width: 50, Height: 10}}
	}
	f.pipeline = NewPipeline(tokensFake{}, f.renderer, &converterFake{}, f.locator, f.compositor, nil,
		func(stage string, _ time.Duration, _ error) { f.stages = append(f.stages, stage) })
	return f
}

func (f *fixture) render(t *testing.T) *domain.GeneratedDocument {
	t.Helper()
	uc := NewRenderDocumentUseCase(f.templates, f.projects, f.repo, f.storage, f.events, f.pipeline, nil)
	doc, err := uc.Render(context.Background(), domain.RenderRequest{TemplateID: "tpl-1", ProjectID: "prj-1"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return doc
}

func (f *fixture) signUseCase(mode SigningMode) *SignDocumentUseCase {
	return NewSignDocumentUseCase(f.repo, f.templates, f.projects, f.storage, f.events, f.pipeline,
		f.compositor, &issuerFake{}, f.signer, SignOptions{Mode: mode}, nil)
}
