// Package cache is a Redis read-through layer over a store.Store.
//
// Registration lists and payment lists are cached as JSON for a short TTL.
// Any write through the decorator, and any explicit Invalidate, drops the
// affected payment key together with every cached registration list, since
// those embed payments.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"karting-finance/internal/models"
	"karting-finance/internal/store"
)

const keyPrefix = "finance:"

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient builds the Redis client from config values.
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

type Store struct {
	store.Store
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

var _ store.Store = (*Store)(nil)

func New(next store.Store, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Store{Store: next, rdb: rdb, ttl: ttl, log: logger.With("component", "cache")}
}

func paymentsKey(registrationID string) string {
	return keyPrefix + "payments:" + registrationID
}

func registrationsKey(scope models.Scope) string {
	return keyPrefix + "regs:" + strconv.Quote(scope.ChampionshipID) + ":" + strconv.Quote(scope.UserID)
}

func (s *Store) ListRegistrations(ctx context.Context, scope models.Scope) ([]models.Registration, error) {
	key := registrationsKey(scope)
	var regs []models.Registration
	if s.load(ctx, key, &regs) {
		return regs, nil
	}
	regs, err := s.Store.ListRegistrations(ctx, scope)
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, regs)
	return regs, nil
}

func (s *Store) GetPaymentData(ctx context.Context, registrationID string) ([]models.Payment, error) {
	key := paymentsKey(registrationID)
	var payments []models.Payment
	if s.load(ctx, key, &payments) {
		return payments, nil
	}
	payments, err := s.Store.GetPaymentData(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, payments)
	return payments, nil
}

func (s *Store) UpdatePaymentDueDate(ctx context.Context, paymentID string, due time.Time) error {
	if err := s.Store.UpdatePaymentDueDate(ctx, paymentID, due); err != nil {
		return err
	}
	// the registration is unknown here, so every payment list goes
	return s.dropMatching(ctx, keyPrefix+"*")
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, registrationID, paymentID, status string) error {
	if err := s.Store.UpdatePaymentStatus(ctx, registrationID, paymentID, status); err != nil {
		return err
	}
	return s.Invalidate(ctx, registrationID)
}

// Invalidate forgets the payments of one registration and all cached lists.
func (s *Store) Invalidate(ctx context.Context, registrationID string) error {
	if err := s.rdb.Del(ctx, paymentsKey(registrationID)).Err(); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", registrationID, err)
	}
	return s.dropMatching(ctx, keyPrefix+"regs:*")
}

func (s *Store) Close() error {
	err := s.Store.Close()
	if cerr := s.rdb.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Store) load(ctx context.Context, key string, dst interface{}) bool {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("cache read failed", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn("cache entry corrupt", "key", key, "err", err)
		return false
	}
	return true
}

func (s *Store) save(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn("cache write failed", "key", key, "err", err)
	}
}

func (s *Store) dropMatching(ctx context.Context, mask string) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, mask, 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan %s: %w", mask, err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache drop: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
