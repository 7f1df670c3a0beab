package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/contract-signer/internal/config"
	"github.com/kirillkom/contract-signer/internal/core/ports"
	"github.com/kirillkom/contract-signer/internal/core/usecase"
	"github.com/kirillkom/contract-signer/internal/infrastructure/compositor"
	"github.com/kirillkom/contract-signer/internal/infrastructure/converter"
	"github.com/kirillkom/contract-signer/internal/infrastructure/docx"
	"github.com/kirillkom/contract-signer/internal/infrastructure/identity"
	"github.com/kirillkom/contract-signer/internal/infrastructure/locator"
	"github.com/kirillkom/contract-signer/internal/infrastructure/pades"
	"github.com/kirillkom/contract-signer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/contract-signer/internal/infrastructure/report"
	"github.com/kirillkom/contract-signer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/contract-signer/internal/infrastructure/resilience"
	"github.com/kirillkom/contract-signer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/contract-signer/internal/infrastructure/storage/s3"
	"github.com/kirillkom/contract-signer/internal/infrastructure/tokens"
)

// Observer receives pipeline stage and converter backend timings.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, err error)
	ObserveConversion(backend, outcome string, elapsed time.Duration)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue *nats.Queue

	RenderUC *usecase.RenderDocumentUseCase
	JobsUC   *usecase.RenderJobUseCase
	SignUC   *usecase.SignDocumentUseCase
	VerifyUC *usecase.VerifyDocumentUseCase
	QueryUC  *usecase.DocumentQueryUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, observer Observer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := usecase.ParseSigningMode(cfg.SigningMode)
	if err != nil {
		return nil, err
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.PostgresMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	repo := postgres.NewDocumentRepository(db)
	templates := postgres.NewTemplateRepository(db)
	projects := postgres.NewProjectRepository(db)
	jobs := postgres.NewRenderJobRepository(db)

	storage, err := newStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(outboundPolicy(cfg), logger)
	queue, err := nats.New(cfg.NATSURL, nats.Options{
		RenderSubject:      cfg.NATSRenderSubject,
		EventsSubject:      cfg.NATSEventsSubject,
		HandlerTimeout:     time.Duration(cfg.WorkerHandlerTimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	var events ports.EventPublisher
	if cfg.EventsEnabled {
		events = queue
	}

	pipeline, err := newPipeline(cfg, executor, logger, observer)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}
	comp := newCompositor(cfg, logger)
	signer := pades.NewSigner(logger)
	issuer := identity.NewIssuer(cfg.CertificateKeyBits, cfg.PKCS12Password, nil)

	renderUC := usecase.NewRenderDocumentUseCase(templates, projects, repo, storage, events, pipeline, logger)
	jobsUC := usecase.NewRenderJobUseCase(jobs, queue, renderUC, logger)
	signUC := usecase.NewSignDocumentUseCase(
		repo, templates, projects, storage, events, pipeline, comp, issuer, signer,
		usecase.SignOptions{Mode: mode, Reason: cfg.SigningReason, Location: cfg.SigningLocation},
		logger,
	)
	verifyUC := usecase.NewVerifyDocumentUseCase(repo, storage, signer, logger)
	queryUC := usecase.NewDocumentQueryUseCase(repo, storage, verifyUC, report.NewXLSXExporter())

	logger.Info("app_initialized",
		"storage_backend", cfg.StorageBackend,
		"signing_mode", string(mode),
		"locale", cfg.Locale,
		"gotenberg", cfg.GotenbergURL != "",
		"events", cfg.EventsEnabled,
	)

	return &App{
		Config: cfg,
		Logger: logger,
		Queue:  queue,

		RenderUC: renderUC,
		JobsUC:   jobsUC,
		SignUC:   signUC,
		VerifyUC: verifyUC,
		QueryUC:  queryUC,

		closeFn: closeAll(queue, db),
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func closeAll(queue *nats.Queue, db *sql.DB) func() {
	return func() {
		queue.Close()
		_ = db.Close()
	}
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return localfs.New(cfg.StoragePath)
	case "s3":
		return s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newPipeline(cfg config.Config, executor *resilience.Executor, logger *slog.Logger, observer Observer) (*usecase.Pipeline, error) {
	labels, err := tokens.LoadLabels(cfg.LabelsFile)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	engine, err := tokens.NewEngine(labels, cfg.Locale, nil)
	if err != nil {
		return nil, fmt.Errorf("init token engine: %w", err)
	}
	rewriter, err := docx.NewRewriter(docx.DefaultPlaceholders)
	if err != nil {
		return nil, fmt.Errorf("init placeholder rewriter: %w", err)
	}

	timeout := time.Duration(cfg.ConverterTimeoutSeconds) * time.Second
	backends := []converter.Backend{
		converter.NewLibreOffice(converter.LibreOfficeOptions{
			Binaries: cfg.ConverterBinaries,
			Timeout:  timeout,
			Archival: cfg.ConverterArchival,
			TempDir:  cfg.ConverterTempDir,
		}, logger),
	}
	if cfg.GotenbergURL != "" {
		backends = append(backends, converter.NewGotenberg(cfg.GotenbergURL, cfg.ConverterArchival, timeout, executor))
	}

	var (
		observeStage      usecase.StageObserver
		observeConversion converter.Observer
	)
	if observer != nil {
		observeStage = observer.ObserveStage
		observeConversion = observer.ObserveConversion
	}

	var loc ports.MarkerLocator = locator.Noop{}
	if cfg.LocatorEnabled {
		loc = locator.NewTextLayer(logger)
	}

	return usecase.NewPipeline(
		engine,
		docx.NewRenderer(rewriter, logger),
		converter.NewChain(logger, observeConversion, backends...),
		loc,
		newCompositor(cfg, logger),
		logger,
		observeStage,
	), nil
}

func outboundPolicy(cfg config.Config) resilience.Policy {
	policy := resilience.DefaultPolicy()
	if cfg.OutboundRetryAttempts > 0 {
		policy.Attempts = cfg.OutboundRetryAttempts
	}
	if cfg.OutboundRetryBackoffMS > 0 {
		policy.BaseDelay = time.Duration(cfg.OutboundRetryBackoffMS) * time.Millisecond
		policy.MaxDelay = max(policy.MaxDelay, 4*policy.BaseDelay)
	}
	policy.Breaker.Disabled = !cfg.OutboundBreakerEnabled
	return policy
}

func newCompositor(cfg config.Config, logger *slog.Logger) *compositor.Compositor {
	opts := compositor.DefaultOptions()
	if cfg.SignatureBoxWidth > 0 {
		opts.BoxWidth = cfg.SignatureBoxWidth
	}
	if cfg.SignatureBoxHeight > 0 {
		opts.BoxHeight = cfg.SignatureBoxHeight
	}
	return compositor.New(opts, logger)
}
