package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/autoeyes/compass/internal/api"
	"github.com/autoeyes/compass/internal/status"
)

// Transport performs one request and reports its outcome.
type Transport interface {
	Do(ctx context.Context, req api.Request) error
}

// AsyncSender dispatches every request on its own goroutine. Nothing is
// retried and a newer request may overtake an older one on the wire.
type AsyncSender struct {
	ctx       context.Context
	transport Transport
	status    status.Reporter
	logger    *slog.Logger
	wg        sync.WaitGroup

	failed metric.Int64Counter
}

// NewAsyncSender creates a sender. Requests run with ctx; cancelling it is the
// only way to abort one in flight.
func NewAsyncSender(ctx context.Context, transport Transport, reporter status.Reporter, logger *slog.Logger) (*AsyncSender, error) {
	if logger == nil {
		logger = slog.Default()
	}
	failed, err := meter().Int64Counter(
		"controller.requests.failed",
		metric.WithDescription("Requests that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}
	return &AsyncSender{
		ctx:       ctx,
		transport: transport,
		status:    reporter,
		logger:    logger,
		failed:    failed,
	}, nil
}

// Send starts req and returns immediately.
func (s *AsyncSender) Send(req api.Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.transport.Do(s.ctx, req)
		if err == nil {
			s.logger.Debug("request complete", "request", req.String(), "seq", req.Seq)
			return
		}

		s.failed.Add(s.ctx, 1, metric.WithAttributes(attribute.String("method", req.Method)))
		s.logger.Warn("request failed", "request", req.String(), "seq", req.Seq, "error", err)
		if s.status != nil {
			s.status.Report(err.Error())
		}
	}()
}

// Wait blocks until every request started so far has finished.
func (s *AsyncSender) Wait() {
	s.wg.Wait()
}
