// Package report renders signature audit workbooks.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

const (
	signaturesSheet = "Signatures"
	documentSheet   = "Document"
)

var signatureHeader = []any{
	"Role", "Signer", "Email", "Signed at", "Certificate fingerprint", "Hash before sign",
	"Visual signature", "Certificate valid", "Integrity valid", "Issues",
}

type XLSXExporter struct{}

func NewXLSXExporter() *XLSXExporter { return &XLSXExporter{} }

func (XLSXExporter) Build(doc *domain.GeneratedDocument, report *domain.VerificationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", signaturesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(documentSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	if err := writeSignatures(f, doc, report, bold); err != nil {
		return nil, err
	}
	if err := writeSummary(f, doc, report, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSignatures(f *excelize.File, doc *domain.GeneratedDocument, report *domain.VerificationReport, bold int) error {
	if err := f.SetSheetRow(signaturesSheet, "A1", &signatureHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(signaturesSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	checks := map[domain.Role]domain.SignatureCheck{}
	if report != nil {
		for _, c := range report.Signatures {
			checks[c.Role] = c
		}
	}
	for i, rec := range doc.DigitalSignatures {
		check := checks[rec.SignerRole]
		row := []any{
			strings.ToUpper(string(rec.SignerRole)),
			rec.SignerName,
			rec.SignerEmail,
			rec.SignedAt.UTC().Format(time.RFC3339),
			rec.CertificateFingerprint,
			rec.DocumentHashBeforeSign,
			yesNo(rec.VisualSignatureIncluded),
			yesNo(check.CertificateValid),
			yesNo(check.IntegrityValid),
			strings.Join(check.Issues, "; "),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(signaturesSheet, cell, &row); err != nil {
			return fmt.Errorf("write signature row: %w", err)
		}
	}
	if err := f.SetColWidth(signaturesSheet, "A", "J", 22); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, doc *domain.GeneratedDocument, report *domain.VerificationReport, bold int) error {
	status := ""
	checked := ""
	if report != nil {
		status = string(report.Status)
		checked = report.CheckedAt.UTC().Format(time.RFC3339)
	}
	rows := [][]any{
		{"Document", doc.ID},
		{"Filename", doc.Filename},
		{"Template", doc.TemplateID},
		{"Project", doc.ProjectID},
		{"Type", string(doc.Type)},
		{"Requires signer A", yesNo(doc.RequiresSignatureA)},
		{"Requires signer B", yesNo(doc.RequiresSignatureB)},
		{"Signing state", string(doc.State())},
		{"Verification status", status},
		{"Checked at", checked},
		{"Created at", doc.CreatedAt.UTC().Format(time.RFC3339)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(documentSheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	if err := f.SetColStyle(documentSheet, "A", bold); err != nil {
		return fmt.Errorf("style summary: %w", err)
	}
	return f.SetColWidth(documentSheet, "A", "B", 30)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
