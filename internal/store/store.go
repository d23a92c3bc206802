// Package store declares the authoritative source of registrations and
// payments. Backends live in internal/sheets and internal/repository, and
// internal/cache decorates any of them.
package store

import (
	"context"
	"errors"
	"time"

	"karting-finance/internal/models"
)

var ErrNotFound = errors.New("not found")

type Store interface {
	// ListRegistrations returns registrations of a championship or of a user,
	// with their payments embedded.
	ListRegistrations(ctx context.Context, scope models.Scope) ([]models.Registration, error)
	GetPaymentData(ctx context.Context, registrationID string) ([]models.Payment, error)
	UpdatePaymentDueDate(ctx context.Context, paymentID string, due time.Time) error
	UpdatePaymentStatus(ctx context.Context, registrationID, paymentID, status string) error

	ListChampionships(ctx context.Context) ([]string, error)
	ListSeasons(ctx context.Context, championshipID string) ([]models.Season, error)
	ListStages(ctx context.Context, championshipID string) ([]models.Stage, error)

	Close() error
}
