package paysync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"karting-finance/internal/models"
)

type RegistrationLister interface {
	ListRegistrations(ctx context.Context, scope models.Scope) ([]models.Registration, error)
	ListChampionships(ctx context.Context) ([]string, error)
}

// Worker periodically refreshes stale payments of whole championships so
// dashboards converge even when nobody presses refresh.
type Worker struct {
	sync          *Synchronizer
	lister        RegistrationLister
	championships []string // empty means every championship in the store
	interval      time.Duration
	log           *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorker(s *Synchronizer, lister RegistrationLister, championships []string, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		sync:          s,
		lister:        lister,
		championships: championships,
		interval:      interval,
		log:           logger.With("component", "paysync-worker"),
		stopCh:        make(chan struct{}),
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.processLoop()
	}()
}

// Stop ends the loop and waits for a running pass. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) processLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			w.RunOnce(ctx)
			cancel()
		case <-w.stopCh:
			return
		}
	}
}

// RunOnce refreshes every configured championship in turn.
func (w *Worker) RunOnce(ctx context.Context) {
	ids := w.championships
	if len(ids) == 0 {
		var err error
		ids, err = w.lister.ListChampionships(ctx)
		if err != nil {
			w.log.Error("list championships", "err", err)
			return
		}
	}
	for _, id := range ids {
		regs, err := w.lister.ListRegistrations(ctx, models.Scope{ChampionshipID: id})
		if err != nil {
			w.log.Error("list registrations", "championship", id, "err", err)
			continue
		}
		_, res := w.sync.RefreshWithResult(ctx, regs)
		w.log.Debug("championship refreshed", "championship", id, "batch", res.BatchID, "synced", res.Synced)
	}
}
