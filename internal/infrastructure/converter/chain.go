package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// Backend is one way of producing a PDF from an office document.
type Backend interface {
	Name() string
	Convert(ctx context.Context, document []byte) ([]byte, error)
}

// Observer receives one call per backend attempt.
type Observer func(backend, outcome string, elapsed time.Duration)

// Chain tries backends in order and returns the first PDF produced.
type Chain struct {
	backends []Backend
	logger   *slog.Logger
	observe  Observer
}

func NewChain(logger *slog.Logger, observe Observer, backends ...Backend) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if observe == nil {
		observe = func(string, string, time.Duration) {}
	}
	return &Chain{backends: backends, logger: logger, observe: observe}
}

func (c *Chain) Convert(ctx context.Context, document []byte) ([]byte, error) {
	if len(c.backends) == 0 {
		return nil, domain.WrapError(domain.ErrConversion, "convert document", errors.New("no conversion backend configured"))
	}

	var errs []error
	for _, backend := range c.backends {
		started := time.Now()
		out, err := backend.Convert(ctx, document)
		if err == nil && !isPDF(out) {
			err = fmt.Errorf("%s returned %d bytes that are not a PDF", backend.Name(), len(out))
		}
		if err == nil {
			c.observe(backend.Name(), "success", time.Since(started))
			return out, nil
		}
		c.observe(backend.Name(), "failure", time.Since(started))
		c.logger.Warn("conversion_backend_failed", "backend", backend.Name(), "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	joined := errors.Join(errs...)
	if domain.IsKind(joined, domain.ErrConversion) {
		return nil, joined
	}
	return nil, domain.WrapError(domain.ErrConversion, "convert document", joined)
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}
