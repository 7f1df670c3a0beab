package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/contract-signer/internal/config"
	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
	"github.com/kirillkom/contract-signer/internal/infrastructure/compositor"
	"github.com/kirillkom/contract-signer/internal/observability/metrics"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Services are the inbound ports the router exposes. Jobs is optional;
// without it async renders are refused.
type Services struct {
	Renderer ports.DocumentRenderer
	Signer   ports.DocumentSigner
	Verifier ports.DocumentVerifier
	Reader   ports.DocumentReader
	Audit    ports.AuditExporter
	Jobs     ports.RenderJobService
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

func NewRouter(cfg config.Config, services Services, m *metrics.HTTPServerMetrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		services: services,
		metrics:  m,
		logger:   logger,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type signPayload struct {
	Role           string `json:"role"`
	SignerName     string `json:"signer_name"`
	SignerEmail    string `json:"signer_email"`
	Organization   string `json:"organization"`
	SignatureImage string `json:"signature_image"`
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.createDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	api.HandleFunc("GET /v1/documents/{id}/file", rt.downloadDocument)
	api.HandleFunc("POST /v1/documents/{id}/signatures", rt.signDocument)
	api.HandleFunc("GET /v1/documents/{id}/verification", rt.verifyDocument)
	api.HandleFunc("GET /v1/documents/{id}/signatures.xlsx", rt.exportAudit)
	api.HandleFunc("GET /v1/render-jobs/{id}", rt.getRenderJob)

	var apiHandler http.Handler = api
	if validator, err := newRequestValidator(); err != nil {
		rt.logger.Error("openapi_validator_disabled", "error", err)
	} else {
		apiHandler = validator.middleware(apiHandler)
	}
	apiHandler = bodyLimitMiddleware(apiHandler, rt.cfg.APIMaxBodyBytes)
	apiHandler = backpressureWithReject(
		apiHandler,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		rt.recordRejected,
	)
	apiHandler = rateLimitMiddleware(apiHandler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejected)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/", apiHandler)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createDocument(w http.ResponseWriter, r *http.Request) {
	var req domain.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode render request", err))
		return
	}
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.ProjectID = strings.TrimSpace(req.ProjectID)

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		rt.enqueueRender(w, r, req)
		return
	}

	doc, err := rt.services.Renderer.Render(r.Context(), req)
	if rt.metrics != nil {
		rt.metrics.RecordRender(err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (rt *Router) enqueueRender(w http.ResponseWriter, r *http.Request, req domain.RenderRequest) {
	if rt.services.Jobs == nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "enqueue render", errors.New("render queue is not configured")))
		return
	}
	job, err := rt.services.Jobs.Enqueue(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/render-jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getRenderJob(w http.ResponseWriter, r *http.Request) {
	if rt.services.Jobs == nil {
		rt.writeError(w, r, domain.NotFoundError("render job", r.PathValue("id")))
		return
	}
	job, err := rt.services.Jobs.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.services.Reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) downloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, body, err := rt.services.Reader.OpenFile(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(doc.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		rt.logger.Warn("document_download_interrupted",
			"request_id", requestIDFromContext(r.Context()),
			"document_id", doc.ID,
			"error", err,
		)
	}
}

func (rt *Router) signDocument(w http.ResponseWriter, r *http.Request) {
	var payload signPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode sign request", err))
		return
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(payload.Role)))

	req := domain.SignRequest{
		DocumentID:   r.PathValue("id"),
		Role:         role,
		SignerName:   strings.TrimSpace(payload.SignerName),
		SignerEmail:  strings.TrimSpace(payload.SignerEmail),
		Organization: strings.TrimSpace(payload.Organization),
	}
	if req.SignerName == "" || req.SignerEmail == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "sign document", errors.New("signer_name and signer_email are required")))
		return
	}
	if strings.TrimSpace(payload.SignatureImage) != "" {
		img, err := compositor.DecodePayload(payload.SignatureImage)
		if err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode signature image", err))
			return
		}
		req.Image = img
	}

	doc, err := rt.services.Signer.Sign(r.Context(), req)
	if rt.metrics != nil {
		rt.metrics.RecordSignature(string(role), err)
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) verifyDocument(w http.ResponseWriter, r *http.Request) {
	report, err := rt.services.Verifier.Verify(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) exportAudit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	out, err := rt.services.Audit.ExportAudit(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", attachment(id+"_signatures.xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(reason)
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	requestID := requestIDFromContext(r.Context())

	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		status = http.StatusRequestEntityTooLarge
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed", "request_id", requestID, "path", r.URL.Path, "error", err)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestID})
}

func attachment(filename string) string {
	filename = strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(filename)
	return fmt.Sprintf(`attachment; filename="%s"`, filename)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
