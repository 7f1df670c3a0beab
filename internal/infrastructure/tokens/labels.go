package tokens

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed labels.yaml
var defaultLabels []byte

// Labels holds per-locale display tables.
type Labels struct {
	DefaultLocale string                 `yaml:"default_locale"`
	Locales       map[string]LocaleTable `yaml:"locales"`
}

type LocaleTable struct {
	Language string            `yaml:"language"`
	Currency string            `yaml:"currency"`
	Months   []string          `yaml:"months"`
	WorkType map[string]string `yaml:"work_type"`
	Status   map[string]string `yaml:"status"`
}

// LoadLabels reads the label tables from path, or the embedded defaults when
// path is empty.
func LoadLabels(path string) (Labels, error) {
	raw := defaultLabels
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Labels{}, fmt.Errorf("read labels file: %w", err)
		}
		raw = data
	}
	return ParseLabels(raw)
}

func ParseLabels(raw []byte) (Labels, error) {
	var labels Labels
	if err := yaml.Unmarshal(raw, &labels); err != nil {
		return Labels{}, fmt.Errorf("decode labels: %w", err)
	}
	if len(labels.Locales) == 0 {
		return Labels{}, fmt.Errorf("labels: no locales defined")
	}
	for name, table := range labels.Locales {
		if len(table.Months) != 12 {
			return Labels{}, fmt.Errorf("labels: locale %q has %d month names, want 12", name, len(table.Months))
		}
	}
	return labels, nil
}

// Table returns the table for locale, falling back to the default locale.
func (l Labels) Table(locale string) (LocaleTable, bool) {
	if t, ok := l.Locales[locale]; ok {
		return t, true
	}
	t, ok := l.Locales[l.DefaultLocale]
	return t, ok
}
