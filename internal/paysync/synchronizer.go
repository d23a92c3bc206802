// Package paysync refreshes payment snapshots that still wait on the gateway.
package paysync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"karting-finance/internal/finance"
	"karting-finance/internal/models"
)

type PaymentSource interface {
	GetPaymentData(ctx context.Context, registrationID string) ([]models.Payment, error)
}

type StatusSyncer interface {
	SyncPaymentStatus(ctx context.Context, registrationID string) error
}

// invalidator is implemented by caching sources that must forget a
// registration before the post-sync re-read.
type invalidator interface {
	Invalidate(ctx context.Context, registrationID string) error
}

// Result counts what one Refresh batch did.
type Result struct {
	BatchID  string
	Checked  int
	Stale    int
	Synced   int
	Failed   int
	Replaced int
}

// Synchronizer walks registrations one at a time and asks the gateway to
// refresh those with in-flight payments. Batches from concurrent callers
// queue on mu, so at most one gateway call is in flight.
type Synchronizer struct {
	source  PaymentSource
	gateway StatusSyncer
	log     *slog.Logger

	mu      sync.Mutex
	running atomic.Int32
}

func New(source PaymentSource, gateway StatusSyncer, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		source:  source,
		gateway: gateway,
		log:     logger.With("component", "paysync"),
	}
}

// Syncing reports whether a Refresh batch is running or queued.
func (s *Synchronizer) Syncing() bool {
	return s.running.Load() > 0
}

// Refresh returns a copy of regs with fresh payment lists for every
// registration that had pending or processing payments and synced
// successfully. Failures keep the previous snapshot and are only logged;
// the batch always runs to the end.
func (s *Synchronizer) Refresh(ctx context.Context, regs []models.Registration) []models.Registration {
	out, _ := s.RefreshWithResult(ctx, regs)
	return out
}

func (s *Synchronizer) RefreshWithResult(ctx context.Context, regs []models.Registration) ([]models.Registration, Result) {
	s.running.Add(1)
	defer s.running.Add(-1)
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{BatchID: uuid.NewString()}
	log := s.log.With("batch", res.BatchID)

	out := make([]models.Registration, len(regs))
	copy(out, regs)

	for i := range out {
		r := &out[i]
		res.Checked++

		if r.Payments == nil {
			payments, err := s.source.GetPaymentData(ctx, r.ID)
			if err != nil {
				log.Warn("load payments failed", "registration", r.ID, "err", err)
				continue
			}
			r.Payments = payments
		}

		if !finance.HasInFlight(r.Payments) {
			continue
		}
		res.Stale++

		if err := s.gateway.SyncPaymentStatus(ctx, r.ID); err != nil {
			res.Failed++
			log.Warn("payment sync failed", "registration", r.ID, "err", err)
			continue
		}
		res.Synced++

		if inv, ok := s.source.(invalidator); ok {
			if err := inv.Invalidate(ctx, r.ID); err != nil {
				log.Warn("cache invalidate failed", "registration", r.ID, "err", err)
			}
		}
		fresh, err := s.source.GetPaymentData(ctx, r.ID)
		if err != nil {
			log.Warn("reload payments failed", "registration", r.ID, "err", err)
			continue
		}
		r.Payments = fresh
		res.Replaced++
	}

	log.Info("payment sync finished",
		"checked", res.Checked, "stale", res.Stale, "synced", res.Synced,
		"failed", res.Failed, "replaced", res.Replaced)
	return out, res
}
