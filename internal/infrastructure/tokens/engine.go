package tokens

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// Engine builds the flat token table for a project.
type Engine struct {
	table   LocaleTable
	printer *message.Printer
	now     func() time.Time
}

func NewEngine(labels Labels, locale string, now func() time.Time) (*Engine, error) {
	table, ok := labels.Table(locale)
	if !ok {
		return nil, fmt.Errorf("labels: locale %q not defined", locale)
	}
	tag, err := language.Parse(table.Language)
	if err != nil {
		return nil, fmt.Errorf("labels: parse language %q: %w", table.Language, err)
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		table:   table,
		printer: message.NewPrinter(tag),
		now:     now,
	}, nil
}

func (e *Engine) Tokens(p *domain.Project) domain.DataRecord {
	site := p.SiteAddress
	if p.SiteSameAsClient {
		site = p.Client.Address
	}

	out := domain.DataRecord{
		"project_title":       p.Title,
		"project_reference":   p.Reference,
		"project_description": p.Description,
		"notes":               p.Notes,

		"client_name":         p.Client.Name,
		"client_email":        p.Client.Email,
		"client_phone":        p.Client.Phone,
		"client_registration": p.Client.RegistrationNumber,
		"client_street":       p.Client.Address.Street,
		"client_postal_code":  p.Client.Address.PostalCode,
		"client_city":         p.Client.Address.City,
		"client_address":      FormatAddress(p.Client.Address),

		"company_name":         p.Company.Name,
		"company_email":        p.Company.Email,
		"company_phone":        p.Company.Phone,
		"company_registration": p.Company.RegistrationNumber,
		"company_address":      FormatAddress(p.Company.Address),

		"site_street":      site.Street,
		"site_postal_code": site.PostalCode,
		"site_city":        site.City,
		"site_address":     FormatAddress(site),

		"work_type": label(e.table.WorkType, string(p.WorkType)),
		"status":    label(e.table.Status, string(p.Status)),

		"start_date": e.formatDatePtr(p.StartDate),
		"end_date":   e.formatDatePtr(p.EndDate),
		"today":      e.FormatDate(e.now()),

		"amount_excl_tax": "",
		"vat_rate":        "",
		"amount_vat":      "",
		"amount_incl_tax": "",
	}

	if p.AmountExclTax != nil {
		excl := *p.AmountExclTax
		out["amount_excl_tax"] = e.FormatMoney(excl)
		if p.VATRate != nil {
			vat := roundCents(excl * *p.VATRate / 100)
			out["vat_rate"] = e.printer.Sprint(number.Decimal(*p.VATRate, number.MaxFractionDigits(2))) + " %"
			out["amount_vat"] = e.FormatMoney(vat)
			out["amount_incl_tax"] = e.FormatMoney(excl + vat)
		}
	}
	return out
}

// FormatDate renders t as "2 <month> 2006" with the locale's month names.
func (e *Engine) FormatDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), e.table.Months[int(t.Month())-1], t.Year())
}

func (e *Engine) formatDatePtr(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return e.FormatDate(*t)
}

func (e *Engine) FormatMoney(v float64) string {
	amount := e.printer.Sprint(number.Decimal(roundCents(v), number.Scale(2)))
	if e.table.Currency == "" {
		return amount
	}
	return amount + " " + e.table.Currency
}

// FormatAddress joins street, "postal code city" and country on separate lines.
func FormatAddress(a domain.Address) string {
	if a.IsZero() {
		return ""
	}
	lines := make([]string, 0, 3)
	if s := strings.TrimSpace(a.Street); s != "" {
		lines = append(lines, s)
	}
	if locality := strings.TrimSpace(strings.TrimSpace(a.PostalCode) + " " + strings.TrimSpace(a.City)); locality != "" {
		lines = append(lines, locality)
	}
	if c := strings.TrimSpace(a.Country); c != "" {
		lines = append(lines, c)
	}
	return strings.Join(lines, "\n")
}

func label(table map[string]string, value string) string {
	if value == "" {
		return ""
	}
	if l, ok := table[value]; ok {
		return l
	}
	return value
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
