package services

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/types/element"
)

// BreakerRepository stops hammering the database once it keeps failing.
// NotFound is a normal answer and does not count as a failure.
type BreakerRepository struct {
	next WhiteboardRepository
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerRepository(next WhiteboardRepository, log *zap.Logger) *BreakerRepository {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "whiteboard-repository",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperr.ErrNotFound)
		},
	})
	return &BreakerRepository{next: next, cb: cb}
}

func (b *BreakerRepository) State() gobreaker.State { return b.cb.State() }

func (b *BreakerRepository) SaveSession(ctx context.Context, info SessionInfo) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.SaveSession(ctx, info)
	})
	return err
}

func (b *BreakerRepository) LoadSession(ctx context.Context, sessionID string) (SessionInfo, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.LoadSession(ctx, sessionID)
	})
	if err != nil {
		return SessionInfo{}, err
	}
	return res.(SessionInfo), nil
}

func (b *BreakerRepository) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.ListSessions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]SessionInfo), nil
}

func (b *BreakerRepository) SaveElement(ctx context.Context, el element.Element) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.SaveElement(ctx, el)
	})
	return err
}

func (b *BreakerRepository) LoadElements(ctx context.Context, sessionID string) ([]element.Element, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.LoadElements(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return res.([]element.Element), nil
}
