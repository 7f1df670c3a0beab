package domain

import "time"

type WorkType string

const (
	WorkTypeRenovation  WorkType = "renovation"
	WorkTypeNewBuild    WorkType = "new_build"
	WorkTypeExtension   WorkType = "extension"
	WorkTypeMaintenance WorkType = "maintenance"
)

type ProjectStatus string

const (
	ProjectDraft      ProjectStatus = "draft"
	ProjectQuoted     ProjectStatus = "quoted"
	ProjectSigned     ProjectStatus = "signed"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectDelivered  ProjectStatus = "delivered"
)

type Address struct {
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IsZero reports whether no address part is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

type Party struct {
	Name               string  `json:"name"`
	Email              string  `json:"email,omitempty"`
	Phone              string  `json:"phone,omitempty"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	Address            Address `json:"address"`
}

// Project is the business record a template is rendered against.
type Project struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Reference        string        `json:"reference,omitempty"`
	Description      string        `json:"description,omitempty"`
	Client           Party         `json:"client"`
	Company          Party         `json:"company"`
	SiteAddress      Address       `json:"site_address"`
	SiteSameAsClient bool          `json:"site_same_as_client"`
	WorkType         WorkType      `json:"work_type,omitempty"`
	Status           ProjectStatus `json:"status,omitempty"`
	StartDate        *time.Time    `json:"start_date,omitempty"`
	EndDate          *time.Time    `json:"end_date,omitempty"`
	AmountExclTax    *float64      `json:"amount_excl_tax,omitempty"`
	VATRate          *float64      `json:"vat_rate,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// DataRecord is the flat token table substituted into templates.
type DataRecord map[string]string
