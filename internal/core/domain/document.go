package domain

import "time"

type DocumentType string

const (
	DocumentTypeContract DocumentType = "contract"
	DocumentTypeQuote    DocumentType = "quote"
	DocumentTypeInvoice  DocumentType = "invoice"
	DocumentTypeOther    DocumentType = "other"
)

// Template is a DOCX template owned by an external collaborator.
type Template struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      DocumentType `json:"type"`
	Content   []byte       `json:"-"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// GeneratedDocument is one render output and its signing state.
type GeneratedDocument struct {
	ID                 string            `json:"id"`
	TemplateID         string            `json:"template_id"`
	ProjectID          string            `json:"project_id"`
	Type               DocumentType      `json:"type"`
	Filename           string            `json:"filename"`
	StorageKey         string            `json:"storage_key"`
	Signed             bool              `json:"signed"`
	RequiresSignatureA bool              `json:"requires_signature_a"`
	RequiresSignatureB bool              `json:"requires_signature_b"`
	SignatureData      SignatureData     `json:"signature_data"`
	DigitalSignatures  []SignatureRecord `json:"digital_signatures"`
	Version            int64             `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Requires reports whether the role must sign this document.
func (d *GeneratedDocument) Requires(role Role) bool {
	switch role {
	case RoleA:
		return d.RequiresSignatureA
	case RoleB:
		return d.RequiresSignatureB
	default:
		return false
	}
}

// RequiredRoles lists roles flagged at generation time, in signing order.
func (d *GeneratedDocument) RequiredRoles() []Role {
	roles := make([]Role, 0, 2)
	for _, role := range Roles() {
		if d.Requires(role) {
			roles = append(roles, role)
		}
	}
	return roles
}

// SignatureFor returns the record for role, if one exists.
func (d *GeneratedDocument) SignatureFor(role Role) (SignatureRecord, bool) {
	for _, rec := range d.DigitalSignatures {
		if rec.SignerRole == role {
			return rec, true
		}
	}
	return SignatureRecord{}, false
}

// State derives the signing lifecycle state from the records.
func (d *GeneratedDocument) State() SigningState {
	if len(d.DigitalSignatures) == 0 {
		return StateUnsigned
	}
	if d.AllRequiredSigned() {
		return StateFullySigned
	}
	return StatePartiallySigned
}

// AllRequiredSigned is true when every required role has a record.
func (d *GeneratedDocument) AllRequiredSigned() bool {
	required := d.RequiredRoles()
	if len(required) == 0 {
		return false
	}
	for _, role := range required {
		if _, ok := d.SignatureFor(role); !ok {
			return false
		}
	}
	return true
}

type SigningState string

const (
	StateUnsigned        SigningState = "unsigned"
	StatePartiallySigned SigningState = "partially_signed"
	StateFullySigned     SigningState = "fully_signed"
)

// DocumentEvent is published on lifecycle transitions.
type DocumentEvent struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id"`
	Role       Role      `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventDocumentGenerated = "document.generated"
	EventDocumentSigned    = "document.signed"
)

// RenderRequest asks for a template to be rendered against a project.
type RenderRequest struct {
	TemplateID string `json:"template_id"`
	ProjectID  string `json:"project_id"`
	// JobID is set for renders queued through the worker.
	JobID string `json:"job_id,omitempty"`
}

type RenderJobStatus string

const (
	RenderJobQueued    RenderJobStatus = "queued"
	RenderJobRunning   RenderJobStatus = "running"
	RenderJobSucceeded RenderJobStatus = "succeeded"
	RenderJobFailed    RenderJobStatus = "failed"
)

// RenderJob tracks an asynchronous render.
type RenderJob struct {
	ID         string          `json:"id"`
	TemplateID string          `json:"template_id"`
	ProjectID  string          `json:"project_id"`
	Status     RenderJobStatus `json:"status"`
	DocumentID string          `json:"document_id,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SignRequest carries one signer's input for a signing call.
type SignRequest struct {
	DocumentID   string `json:"document_id"`
	Role         Role   `json:"role"`
	SignerName   string `json:"signer_name"`
	SignerEmail  string `json:"signer_email"`
	Organization string `json:"organization,omitempty"`
	Image        []byte `json:"-"`
}
