package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings bound how a failing sink is skipped.
type BreakerSettings struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long an open breaker rejects sends before probing again.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings suits remote analytics backends.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// BreakerSink guards a Sink with a circuit breaker so an unreachable backend
// costs one fast rejection per event instead of a full send timeout.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerSink(name string, next Sink, s BreakerSettings, logger *slog.Logger) *BreakerSink {
	if logger == nil {
		logger = slog.Default()
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultBreakerSettings().FailureThreshold
	}
	threshold := s.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("history sink breaker changed state",
				slog.String("sink", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return &BreakerSink{next: next, cb: cb}
}

func (b *BreakerSink) Send(ctx context.Context, e Event) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, e)
	})
	return err
}

// State reports the breaker state (closed, half-open, open).
func (b *BreakerSink) State() string { return b.cb.State().String() }

func (b *BreakerSink) Close() error {
	if c, ok := b.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func sinkName(s Sink) string { return fmt.Sprintf("%T", s) }
