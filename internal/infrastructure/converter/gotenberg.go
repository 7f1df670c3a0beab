package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/contract-signer/internal/infrastructure/resilience"
)

const gotenbergConvertPath = "/forms/libreoffice/convert"

// Gotenberg converts documents through a Gotenberg HTTP service.
type Gotenberg struct {
	baseURL    string
	archival   bool
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewGotenberg(baseURL string, archival bool, timeout time.Duration, executor *resilience.Executor) *Gotenberg {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultPolicy(), nil)
	}
	return &Gotenberg{
		baseURL:    strings.TrimRight(baseURL, "/"),
		archival:   archival,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (g *Gotenberg) Name() string { return "gotenberg" }

func (g *Gotenberg) Convert(ctx context.Context, document []byte) ([]byte, error) {
	var pdf []byte
	err := g.executor.Do(ctx, "gotenberg_convert", func(callCtx context.Context) error {
		out, err := g.convertOnce(callCtx, document)
		if err != nil {
			return err
		}
		pdf = out
		return nil
	}, classifyGotenberg)
	if err != nil {
		return nil, conversionError("gotenberg convert", err)
	}
	return pdf, nil
}

func (g *Gotenberg) convertOnce(ctx context.Context, document []byte) ([]byte, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("files", "document.docx")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(document); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if g.archival {
		if err := form.WriteField("pdfa", "PDF/A-2b"); err != nil {
			return nil, err
		}
		if err := form.WriteField("pdfua", "true"); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+gotenbergConvertPath, &body)
	if err != nil {
		return nil, fmt.Errorf("create convert request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg convert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &HTTPStatusError{Operation: "convert", StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read convert response: %w", err)
	}
	return out, nil
}

// HTTPStatusError is a non-2xx answer from the conversion service.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "gotenberg status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("gotenberg %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("gotenberg %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}
