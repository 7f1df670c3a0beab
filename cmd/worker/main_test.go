package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/observability/metrics"
)

type runnerFake struct {
	calls int
	err   error
}

func (f *runnerFake) Run(_ context.Context, req domain.RenderRequest) (*domain.GeneratedDocument, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GeneratedDocument{ID: "doc-" + req.ProjectID}, nil
}

func TestRenderHandlerPropagatesResult(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWorkerMetrics("worker")

	ok := &runnerFake{}
	if err := renderHandler(ok, m, logger)(context.Background(), domain.RenderRequest{TemplateID: "t", ProjectID: "p"}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	failing := &runnerFake{err: domain.WrapError(domain.ErrConversion, "convert", errors.New("no converter"))}
	err := renderHandler(failing, m, logger)(context.Background(), domain.RenderRequest{TemplateID: "t", ProjectID: "p"})
	if !domain.IsKind(err, domain.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if ok.calls != 1 || failing.calls != 1 {
		t.Fatalf("expected one render per request, got %d and %d", ok.calls, failing.calls)
	}
}
