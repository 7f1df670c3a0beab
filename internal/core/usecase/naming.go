package usecase

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

var (
	signedSuffix = regexp.MustCompile(`_sig[12]$`)
	underscores  = regexp.MustCompile(`_+`)
)

// ArtifactName builds "<template>_<project title>_<YYYY-MM-DD>.pdf".
func ArtifactName(templateName, projectTitle string, at time.Time) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{templateName, projectTitle} {
		if s := sanitizeFilename(p); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "document")
	}
	parts = append(parts, at.Format("2006-01-02"))
	return strings.Join(parts, "_") + ".pdf"
}

// SignedFilename replaces any earlier role suffix with the one for role.
func SignedFilename(filename string, role domain.Role) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf"
	}
	base := signedSuffix.ReplaceAllString(strings.TrimSuffix(filename, filepath.Ext(filename)), "")
	return fmt.Sprintf("%s_sig%d%s", base, role.Index(), ext)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(foldAccents(name)))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	return strings.Trim(underscores.ReplaceAllString(base, "_"), "_.")
}
