package httpadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/contract-signer/internal/config"
	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/observability/metrics"
)

type rendererFake struct {
	got domain.RenderRequest
	err error
}

func (f *rendererFake) Render(_ context.Context, req domain.RenderRequest) (*domain.GeneratedDocument, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GeneratedDocument{ID: "doc-1", TemplateID: req.TemplateID, ProjectID: req.ProjectID, Filename: "Devis.pdf"}, nil
}

type signerFake struct {
	got domain.SignRequest
	err error
}

func (f *signerFake) Sign(_ context.Context, req domain.SignRequest) (*domain.GeneratedDocument, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GeneratedDocument{ID: req.DocumentID, Filename: "Devis_sig1.pdf"}, nil
}

type verifierFake struct{ err error }

func (f verifierFake) Verify(_ context.Context, id string) (*domain.VerificationReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.VerificationReport{DocumentID: id, Status: domain.VerificationUnsigned}, nil
}

type readerFake struct{ err error }

func (f readerFake) GetByID(_ context.Context, id string) (*domain.GeneratedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GeneratedDocument{ID: id, Filename: "Devis.pdf"}, nil
}

func (f readerFake) OpenFile(_ context.Context, id string) (*domain.GeneratedDocument, io.ReadCloser, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return &domain.GeneratedDocument{ID: id, Filename: "Devis.pdf"}, io.NopCloser(strings.NewReader("%PDF-1.7")), nil
}

type auditFake struct{}

func (auditFake) ExportAudit(context.Context, string) ([]byte, error) { return []byte("PK\x03\x04"), nil }

type jobsFake struct {
	got []domain.RenderRequest
}

func (f *jobsFake) Enqueue(_ context.Context, req domain.RenderRequest) (*domain.RenderJob, error) {
	f.got = append(f.got, req)
	return &domain.RenderJob{ID: "job-1", TemplateID: req.TemplateID, ProjectID: req.ProjectID, Status: domain.RenderJobQueued}, nil
}

func (f *jobsFake) GetJob(_ context.Context, id string) (*domain.RenderJob, error) {
	if id != "job-1" {
		return nil, domain.NotFoundError("render job", id)
	}
	return &domain.RenderJob{ID: id, Status: domain.RenderJobSucceeded, DocumentID: "doc-1"}, nil
}

type routerFixture struct {
	renderer *rendererFake
	signer   *signerFake
	jobs     *jobsFake
	services Services
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{renderer: &rendererFake{}, signer: &signerFake{}, jobs: &jobsFake{}}
	f.services = Services{
		Renderer: f.renderer,
		Signer:   f.signer,
		Verifier: verifierFake{},
		Reader:   readerFake{},
		Audit:    auditFake{},
		Jobs:     f.jobs,
	}
	return f
}

func (f *routerFixture) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, f.services, nil, nil).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decodeError(t *testing.T, res *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", res.Body.String(), err)
	}
	return out
}

func TestCreateDocumentReturns201(t *testing.T) {
	f := newRouterFixture()
	res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents",
		map[string]string{"template_id": " tpl-1 ", "project_id": "prj-1"})

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if f.renderer.got.TemplateID != "tpl-1" {
		t.Fatalf("expected trimmed template id, got %q", f.renderer.got.TemplateID)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestCreateDocumentRejectsMissingFieldsBeforeUseCase(t *testing.T) {
	f := newRouterFixture()
	res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents",
		map[string]string{"template_id": "tpl-1"})

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(decodeError(t, res).Error, "project_id") {
		t.Fatalf("expected error to name the missing field, got %s", res.Body.String())
	}
	if f.renderer.got.TemplateID != "" {
		t.Fatalf("renderer must not be called for invalid requests")
	}
}

func TestCreateDocumentAsyncQueuesRender(t *testing.T) {
	f := newRouterFixture()
	res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents?async=true",
		map[string]string{"template_id": "tpl-1", "project_id": "prj-1"})

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(f.jobs.got) != 1 || f.jobs.got[0].ProjectID != "prj-1" {
		t.Fatalf("expected one queued render, got %+v", f.jobs.got)
	}
	if f.renderer.got.TemplateID != "" {
		t.Fatalf("async render must not run inline")
	}
	if loc := res.Header().Get("Location"); loc != "/v1/render-jobs/job-1" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestGetRenderJob(t *testing.T) {
	f := newRouterFixture()
	h := f.handler(config.Config{})

	res := doJSON(t, h, http.MethodGet, "/v1/render-jobs/job-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var job domain.RenderJob
	if err := json.Unmarshal(res.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != domain.RenderJobSucceeded || job.DocumentID != "doc-1" {
		t.Fatalf("unexpected job %+v", job)
	}

	res = doJSON(t, h, http.MethodGet, "/v1/render-jobs/nope", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestCreateDocumentAsyncWithoutQueueIsUnavailable(t *testing.T) {
	f := newRouterFixture()
	f.services.Jobs = nil
	res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents?async=1",
		map[string]string{"template_id": "tpl-1", "project_id": "prj-1"})

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestSignDocumentDecodesImageAndRole(t *testing.T) {
	f := newRouterFixture()
	png := []byte("\x89PNG\r\n\x1a\nrest")
	res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents/doc-9/signatures", map[string]string{
		"role":            "B",
		"signer_name":     "Bob",
		"signer_email":    "bob@example.com",
		"signature_image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	got := f.signer.got
	if got.DocumentID != "doc-9" || got.Role != domain.RoleB || got.SignerName != "Bob" {
		t.Fatalf("unexpected sign request %+v", got)
	}
	if !bytes.Equal(got.Image, png) {
		t.Fatalf("expected decoded image bytes, got %q", got.Image)
	}
}

func TestSignDocumentRejectsUnknownRole(t *testing.T) {
	f := newRouterFixture()
	res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents/doc-1/signatures", map[string]string{
		"role": "c", "signer_name": "Carl", "signer_email": "c@example.com",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSignDocumentRejectsBadImage(t *testing.T) {
	f := newRouterFixture()
	res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents/doc-1/signatures", map[string]string{
		"role": "a", "signer_name": "Alice", "signer_email": "a@example.com", "signature_image": "data:image/png,raw",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
	}
	if f.signer.got.DocumentID != "" {
		t.Fatalf("signer must not be called with an undecodable image")
	}
}

func TestSignDocumentMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"already signed", fmt.Errorf("sign: %w", domain.ErrAlreadySigned), http.StatusConflict},
		{"role not required", fmt.Errorf("sign: %w", domain.ErrRoleNotRequired), http.StatusConflict},
		{"concurrent update", domain.WrapError(domain.ErrConflict, "update", errors.New("version 3")), http.StatusConflict},
		{"not found", domain.NotFoundError("document", "doc-1"), http.StatusNotFound},
		{"render", domain.WrapError(domain.ErrRender, "render", errors.New("bad tag")), http.StatusUnprocessableEntity},
		{"conversion", domain.WrapError(domain.ErrConversion, "convert", errors.New("no converter")), http.StatusBadGateway},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRouterFixture()
			f.signer.err = tc.err
			res := doJSON(t, f.handler(config.Config{}), http.MethodPost, "/v1/documents/doc-1/signatures", map[string]string{
				"role": "a", "signer_name": "Alice", "signer_email": "a@example.com",
			})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			body := decodeError(t, res)
			if body.RequestID == "" {
				t.Fatalf("expected request id in error body")
			}
			if tc.want == http.StatusInternalServerError && body.Error != "internal error" {
				t.Fatalf("internal errors must not leak details, got %q", body.Error)
			}
		})
	}
}

func TestGetDocumentReturns404ForNotFound(t *testing.T) {
	f := newRouterFixture()
	f.services.Reader = readerFake{err: domain.NotFoundError("document", "missing")}
	res := doJSON(t, f.handler(config.Config{}), http.MethodGet, "/v1/documents/missing", nil)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if !strings.Contains(decodeError(t, res).Error, "missing") {
		t.Fatalf("expected id in error message, got %s", res.Body.String())
	}
}

func TestDownloadDocumentStreamsPDF(t *testing.T) {
	f := newRouterFixture()
	res := doJSON(t, f.handler(config.Config{}), http.MethodGet, "/v1/documents/doc-1/file", nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if cd := res.Header().Get("Content-Disposition"); cd != `attachment; filename="Devis.pdf"` {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if res.Body.String() != "%PDF-1.7" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
}

func TestVerificationAndAuditRoutes(t *testing.T) {
	f := newRouterFixture()
	h := f.handler(config.Config{})

	res := doJSON(t, h, http.MethodGet, "/v1/documents/doc-1/verification", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("verification expected 200, got %d", res.Code)
	}
	var report domain.VerificationReport
	if err := json.Unmarshal(res.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.DocumentID != "doc-1" || report.Status != domain.VerificationUnsigned {
		t.Fatalf("unexpected report %+v", report)
	}

	res = doJSON(t, h, http.MethodGet, "/v1/documents/doc-1/signatures.xlsx", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("audit expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected audit content type %q", ct)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newRouterFixture()
	res := doJSON(t, f.handler(config.Config{}), http.MethodDelete, "/v1/documents/doc-1", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newRouterFixture()
	m := metrics.NewHTTPServerMetrics("api")
	h := NewRouter(config.Config{}, f.services, m, nil).Handler()

	doJSON(t, h, http.MethodPost, "/v1/documents", map[string]string{"template_id": "t", "project_id": "p"})

	res := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("healthz expected 200, got %d", res.Code)
	}
	res = doJSON(t, h, http.MethodGet, "/metrics", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("metrics expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "contract_signer_documents_renders_total") {
		t.Fatalf("expected render counter in metrics output")
	}
}
