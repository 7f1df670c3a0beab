package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/infrastructure/resilience"
)

const renderQueueGroup = "renderers"

type conn interface {
	Publish(subject string, data []byte) error
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
	Flush() error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type Queue struct {
	conn           conn
	renderSubject  string
	eventsSubject  string
	handlerTimeout time.Duration
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	RenderSubject        string
	EventsSubject        string
	HandlerTimeout       time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func (o Options) normalize() Options {
	if o.RenderSubject == "" {
		o.RenderSubject = "documents.render"
	}
	if o.EventsSubject == "" {
		o.EventsSubject = "documents.events"
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 2 * time.Minute
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 2 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 2 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 60
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func New(url string, options Options) (*Queue, error) {
	options = options.normalize()
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger

	nc, err := nats.Connect(
		url,
		nats.Name("contract-signer"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newQueue(nc, options), nil
}

func newQueue(c conn, options Options) *Queue {
	options = options.normalize()
	return &Queue{
		conn:           c,
		renderSubject:  options.RenderSubject,
		eventsSubject:  options.EventsSubject,
		handlerTimeout: options.HandlerTimeout,
		executor:       options.ResilienceExecutor,
		logger:         options.Logger,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal document event: %w", err)
	}
	return q.publish(ctx, q.eventsSubject, payload)
}

// PublishRenderRequest enqueues an asynchronous render.
func (q *Queue) PublishRenderRequest(ctx context.Context, req domain.RenderRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal render request: %w", err)
	}
	return q.publish(ctx, q.renderSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Do(ctx, "nats.publish", call, classifyPublish)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

func (q *Queue) SubscribeRenderRequests(ctx context.Context, handler func(context.Context, domain.RenderRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.renderSubject, renderQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.handleRender(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) handleRender(ctx context.Context, data []byte, handler func(context.Context, domain.RenderRequest) error) {
	var req domain.RenderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		q.logger.Error("render_request_malformed", "error", err, "payload_bytes", len(data))
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, q.handlerTimeout)
	defer cancel()
	if err := handler(handlerCtx, req); err != nil {
		q.logger.Error("render_request_failed",
			"template_id", req.TemplateID,
			"project_id", req.ProjectID,
			"error", err,
		)
	}
}
