package ports

import (
	"context"
	"io"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// DocumentRepository persists generated document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.GeneratedDocument) error
	GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error)
	// Update stores doc if its Version still matches the persisted row and
	// increments Version on success.
	Update(ctx context.Context, doc *domain.GeneratedDocument) error
}

// TemplateSource loads DOCX templates.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
}

// ProjectSource loads business records.
type ProjectSource interface {
	GetProject(ctx context.Context, id string) (*domain.Project, error)
}

// ObjectStorage stores rendered and signed artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventPublisher announces document lifecycle transitions.
type EventPublisher interface {
	PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error
}

// RenderRequestQueue delivers asynchronous render requests.
type RenderRequestQueue interface {
	SubscribeRenderRequests(ctx context.Context, handler func(context.Context, domain.RenderRequest) error) error
}

// TokenEngine flattens a business record into template tokens.
type TokenEngine interface {
	Tokens(project *domain.Project) domain.DataRecord
}

// TemplateRenderer rewrites signature placeholders to markers, substitutes
// data tokens and reports which roles the template expects.
type TemplateRenderer interface {
	Render(template []byte, data domain.DataRecord) (*RenderedTemplate, error)
}

type RenderedTemplate struct {
	Content    []byte
	Roles      []domain.Role
	MarkerRole map[string]domain.Role
}

// DocumentConverter turns an office document into PDF bytes.
type DocumentConverter interface {
	Convert(ctx context.Context, document []byte) ([]byte, error)
}

// MarkerLocator finds every occurrence of marker in a PDF.
type MarkerLocator interface {
	Locate(ctx context.Context, pdf []byte, marker string) ([]domain.MarkerPosition, error)
}

// SignatureCompositor whites out markers and stamps signature images.
type SignatureCompositor interface {
	Composite(pdf []byte, positions map[domain.Role][]domain.MarkerPosition, images map[domain.Role][]byte) ([]byte, error)
}

// CertificateIssuer mints one-shot signing identities.
type CertificateIssuer interface {
	Issue(ctx context.Context, name, email, organization string) (*domain.EphemeralIdentity, error)
}

// PDFSigner embeds a CMS advanced signature into a PDF.
type PDFSigner interface {
	Sign(ctx context.Context, pdf []byte, identity *domain.EphemeralIdentity, meta domain.SignatureMeta) ([]byte, error)
}

// SignatureInspector reports the cryptographic signatures embedded in a PDF.
type SignatureInspector interface {
	Inspect(ctx context.Context, pdf []byte) ([]domain.EmbeddedSignature, error)
}

// AuditWorkbook renders the signature audit spreadsheet.
type AuditWorkbook interface {
	Build(doc *domain.GeneratedDocument, report *domain.VerificationReport) ([]byte, error)
}

// RenderRequestPublisher hands a render off to the worker.
type RenderRequestPublisher interface {
	PublishRenderRequest(ctx context.Context, req domain.RenderRequest) error
}

// RenderJobRepository persists asynchronous render status.
type RenderJobRepository interface {
	CreateJob(ctx context.Context, job *domain.RenderJob) error
	GetJob(ctx context.Context, id string) (*domain.RenderJob, error)
	UpdateJob(ctx context.Context, job *domain.RenderJob) error
}
