// Package dashboard builds the financial views shown by the HTTP API and the
// Telegram bot from the store, the finance engine and the payment sync.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"karting-finance/internal/finance"
	"karting-finance/internal/models"
	"karting-finance/internal/paysync"
	"karting-finance/internal/store"
)

type ChampionshipOverview struct {
	ChampionshipID  string                  `json:"championship_id"`
	Totals          finance.AggregateResult `json:"totals"`
	Seasons         []finance.SeasonSummary `json:"seasons"`
	UnknownStatuses []string                `json:"unknown_statuses,omitempty"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

type UserOverview struct {
	UserID        string                   `json:"user_id"`
	Totals        finance.AggregateResult  `json:"totals"`
	Registrations []finance.PilotBreakdown `json:"registrations"`
	GeneratedAt   time.Time                `json:"generated_at"`
}

type Service struct {
	store store.Store
	sync  *paysync.Synchronizer
	log   *slog.Logger
	now   func() time.Time
}

func New(st store.Store, sync *paysync.Synchronizer, logger *slog.Logger) *Service {
	return &Service{
		store: st,
		sync:  sync,
		log:   logger.With("component", "dashboard"),
		now:   time.Now,
	}
}

// Syncing reports whether a payment refresh batch is running.
func (s *Service) Syncing() bool { return s.sync.Syncing() }

func (s *Service) registrations(ctx context.Context, scope models.Scope, refresh bool) ([]models.Registration, error) {
	regs, err := s.store.ListRegistrations(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}
	if refresh {
		regs = s.sync.Refresh(ctx, regs)
	}
	if unknown := finance.UnknownStatuses(regs); len(unknown) > 0 {
		s.log.Warn("unrecognised gateway statuses ignored", "statuses", unknown,
			"championship", scope.ChampionshipID, "user", scope.UserID)
	}
	return regs, nil
}

// Championship builds the season and stage cards of one championship,
// optionally refreshing stale payments first.
func (s *Service) Championship(ctx context.Context, championshipID string, refresh bool) (ChampionshipOverview, error) {
	regs, err := s.registrations(ctx, models.Scope{ChampionshipID: championshipID}, refresh)
	if err != nil {
		return ChampionshipOverview{}, err
	}
	seasons, err := s.store.ListSeasons(ctx, championshipID)
	if err != nil {
		return ChampionshipOverview{}, fmt.Errorf("load seasons: %w", err)
	}
	stages, err := s.store.ListStages(ctx, championshipID)
	if err != nil {
		return ChampionshipOverview{}, fmt.Errorf("load stages: %w", err)
	}

	return ChampionshipOverview{
		ChampionshipID:  championshipID,
		Totals:          finance.Aggregate(regs, finance.FullShare),
		Seasons:         finance.SeasonSummaries(regs, seasons, stages),
		UnknownStatuses: finance.UnknownStatuses(regs),
		GeneratedAt:     s.now(),
	}, nil
}

// Pilots is the financial tab: one row per registration, sorted by pilot
// name, filtered by badge status and free text.
func (s *Service) Pilots(ctx context.Context, championshipID, status, search string, refresh bool) ([]finance.PilotBreakdown, error) {
	regs, err := s.registrations(ctx, models.Scope{ChampionshipID: championshipID}, refresh)
	if err != nil {
		return nil, err
	}
	sortByPilot(regs)

	filtered := finance.FilterPilots(regs, status, search)
	out := make([]finance.PilotBreakdown, 0, len(filtered))
	for _, r := range filtered {
		out = append(out, finance.Breakdown(r, finance.FullShare))
	}
	return out, nil
}

// User summarises every registration of one user without stage proration.
func (s *Service) User(ctx context.Context, userID string, refresh bool) (UserOverview, error) {
	regs, err := s.registrations(ctx, models.Scope{UserID: userID}, refresh)
	if err != nil {
		return UserOverview{}, err
	}
	sortByPilot(regs)

	rows := make([]finance.PilotBreakdown, 0, len(regs))
	for _, r := range regs {
		rows = append(rows, finance.Breakdown(r, finance.FullShare))
	}
	return UserOverview{
		UserID:        userID,
		Totals:        finance.Aggregate(regs, finance.FullShare),
		Registrations: rows,
		GeneratedAt:   s.now(),
	}, nil
}

// Stage lists the prorated rows of every stage-based registration linked to
// stageID, for the CSV export.
func (s *Service) Stage(ctx context.Context, stageID string) ([]finance.PilotBreakdown, error) {
	regs, err := s.registrations(ctx, models.Scope{}, false)
	if err != nil {
		return nil, err
	}
	sortByPilot(regs)

	var out []finance.PilotBreakdown
	for _, byStage := range finance.GroupByStage(regs) {
		for _, r := range byStage[stageID] {
			out = append(out, finance.Breakdown(r, finance.ProrationShare))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].PilotName) < strings.ToLower(out[j].PilotName)
	})
	return out, nil
}

// Refresh runs a payment sync over a championship and reports the batch.
func (s *Service) Refresh(ctx context.Context, championshipID string) (paysync.Result, error) {
	regs, err := s.store.ListRegistrations(ctx, models.Scope{ChampionshipID: championshipID})
	if err != nil {
		return paysync.Result{}, fmt.Errorf("load registrations: %w", err)
	}
	_, res := s.sync.RefreshWithResult(ctx, regs)
	return res, nil
}

// OpenPayments lists the pending and overdue payments of a registration,
// the ones a pilot can still pay.
func (s *Service) OpenPayments(ctx context.Context, registrationID string) ([]models.Payment, error) {
	payments, err := s.store.GetPaymentData(ctx, registrationID)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	var out []models.Payment
	for _, p := range payments {
		if b, ok := finance.ClassifyPayment(p.Status); ok && (b == finance.BucketPending || b == finance.BucketOverdue) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) UpdateDueDate(ctx context.Context, paymentID string, due time.Time) error {
	if err := s.store.UpdatePaymentDueDate(ctx, paymentID, due); err != nil {
		return fmt.Errorf("update due date: %w", err)
	}
	s.log.Info("payment due date changed", "payment", paymentID, "due", due.Format("2006-01-02"))
	return nil
}

// ApplyPaymentEvent stores a status pushed by the gateway.
func (s *Service) ApplyPaymentEvent(ctx context.Context, ev models.PaymentEvent) error {
	if _, ok := finance.ClassifyPayment(ev.Status); !ok {
		s.log.Warn("webhook carries unrecognised status", "payment", ev.PaymentID, "status", ev.Status)
	}
	if err := s.store.UpdatePaymentStatus(ctx, ev.RegistrationID, ev.PaymentID, ev.Status); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func sortByPilot(regs []models.Registration) {
	sort.SliceStable(regs, func(i, j int) bool {
		a, b := strings.ToLower(regs[i].PilotName), strings.ToLower(regs[j].PilotName)
		if a != b {
			return a < b
		}
		return regs[i].ID < regs[j].ID
	})
}
