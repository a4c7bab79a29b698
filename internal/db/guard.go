package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"tuition/internal/billing"
	"tuition/internal/types"
)

var _ billing.Store = (*GuardedStore)(nil)

// GuardedStore wraps a billing.Store in a circuit breaker. After more than
// five consecutive storage failures calls fail fast with
// upstream_storage_unavailable until the breaker half-opens 30s later.
//
// Domain outcomes (not found, duplicate period, malformed record) and caller
// cancellation count as successes; only transport and database errors trip
// the breaker.
type GuardedStore struct {
	inner   billing.Store
	breaker *gobreaker.CircuitBreaker[any]
}

// NewGuardedStore creates a GuardedStore with the standard breaker settings.
func NewGuardedStore(inner billing.Store, name string, logger *slog.Logger) *GuardedStore {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("storage circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return &GuardedStore{inner: inner, breaker: cb}
}

// State reports the breaker state, for health output.
func (g *GuardedStore) State() gobreaker.State {
	return g.breaker.State()
}

func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return types.IsNotFound(err) || types.IsConflict(err) || types.IsMalformed(err)
}

// guarded runs fn through the breaker and maps an open breaker to an AppError.
func guarded[T any](g *GuardedStore, fn func() (T, error)) (T, error) {
	v, err := g.breaker.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, types.NewAppError(types.ErrCodeUpstreamStorage,
			"circuit breaker is open; storage unavailable", err)
	}
	t, _ := v.(T)
	return t, err
}

func (g *GuardedStore) ListStudentsWithEnrollmentAndPayments(ctx context.Context) ([]types.Student, error) {
	return guarded(g, func() ([]types.Student, error) {
		return g.inner.ListStudentsWithEnrollmentAndPayments(ctx)
	})
}

func (g *GuardedStore) GetStudent(ctx context.Context, id int64) (*types.Student, error) {
	return guarded(g, func() (*types.Student, error) {
		return g.inner.GetStudent(ctx, id)
	})
}

func (g *GuardedStore) CreateObligation(ctx context.Context, ob *types.Obligation) (string, error) {
	return guarded(g, func() (string, error) {
		return g.inner.CreateObligation(ctx, ob)
	})
}

func (g *GuardedStore) UpdateObligationAmounts(ctx context.Context, id string, amounts types.ObligationAmounts) error {
	_, err := guarded(g, func() (struct{}, error) {
		return struct{}{}, g.inner.UpdateObligationAmounts(ctx, id, amounts)
	})
	return err
}
