package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

const (
	DefaultTimeout = 30 * time.Second

	pdfFormat = "pdf"
	// PDF/A-2 with a tagged structure tree.
	archivalFormat = `pdf:writer_pdf_Export:{"SelectPdfVersion":{"type":"long","value":"2"},"UseTaggedPDF":{"type":"boolean","value":"true"}}`
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// LibreOffice converts documents by running the office suite headless.
type LibreOffice struct {
	binaries []string
	timeout  time.Duration
	archival bool
	tempDir  string
	logger   *slog.Logger

	lookPath func(string) (string, error)
	run      runFunc
}

type LibreOfficeOptions struct {
	// Binaries are tried in order; the first one found on PATH is used.
	Binaries []string
	Timeout  time.Duration
	Archival bool
	TempDir  string
}

func NewLibreOffice(opts LibreOfficeOptions, logger *slog.Logger) *LibreOffice {
	if len(opts.Binaries) == 0 {
		opts.Binaries = []string{"libreoffice", "soffice"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LibreOffice{
		binaries: opts.Binaries,
		timeout:  opts.Timeout,
		archival: opts.Archival,
		tempDir:  opts.TempDir,
		logger:   logger,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

func (l *LibreOffice) Name() string { return "libreoffice" }

func (l *LibreOffice) Convert(ctx context.Context, document []byte) ([]byte, error) {
	binary, err := l.resolveBinary()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(l.tempDir, "convert-*")
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "create scratch directory", err)
	}
	defer os.RemoveAll(dir)

	session := uuid.NewString()
	input := filepath.Join(dir, session+".docx")
	if err := os.WriteFile(input, document, 0o600); err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "write conversion input", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	started := time.Now()
	output, err := l.run(runCtx, binary, "--headless", "--convert-to", l.format(), "--outdir", dir, input)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, domain.WrapError(domain.ErrConversion, "run "+binary, fmt.Errorf("timed out after %s", l.timeout))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "run "+binary, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}

	pdfPath, err := findOutput(dir, session)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "locate conversion output", err)
	}
	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConversion, "read conversion output", err)
	}
	l.logger.Debug("document_converted", "binary", binary, "bytes", len(pdf), "duration_ms", time.Since(started).Milliseconds())
	return pdf, nil
}

func (l *LibreOffice) resolveBinary() (string, error) {
	for _, name := range l.binaries {
		if path, err := l.lookPath(name); err == nil {
			return path, nil
		}
	}
	return "", domain.WrapError(
		domain.ErrConversion,
		"resolve converter binary",
		fmt.Errorf("none of %s found on PATH: install LibreOffice (package libreoffice) to enable PDF conversion", strings.Join(l.binaries, ", ")),
	)
}

func (l *LibreOffice) format() string {
	if l.archival {
		return archivalFormat
	}
	return pdfFormat
}

// findOutput returns <dir>/<session>.pdf, or any PDF in dir carrying the
// session prefix when the suite renamed it.
func findOutput(dir, session string) (string, error) {
	expected := filepath.Join(dir, session+".pdf")
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, session) && strings.HasSuffix(strings.ToLower(name), ".pdf") {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("no PDF produced in %s", dir)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "HOME="+os.TempDir())
	return cmd.CombinedOutput()
}
