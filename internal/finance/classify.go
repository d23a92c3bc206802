// Package finance turns registration and payment snapshots into payment
// statuses, installment counters and monetary aggregates per season and stage.
//
// Every function here is pure: nothing is cached and inputs are never mutated,
// so callers recompute from the latest snapshot whenever they need a view.
package finance

import (
	"strings"

	"karting-finance/internal/models"
)

// Bucket is the classification of a single raw gateway payment status.
type Bucket string

const (
	BucketPaid       Bucket = "paid"
	BucketPending    Bucket = "pending"
	BucketOverdue    Bucket = "overdue"
	BucketRefunded   Bucket = "refunded"
	BucketCancelled  Bucket = "cancelled"
	BucketProcessing Bucket = "processing"
)

// CanonicalStatus is the single badge shown for a registration.
type CanonicalStatus string

const (
	StatusPaid       CanonicalStatus = "paid"
	StatusPending    CanonicalStatus = "pending"
	StatusOverdue    CanonicalStatus = "overdue"
	StatusRefunded   CanonicalStatus = "refunded"
	StatusCancelled  CanonicalStatus = "cancelled"
	StatusProcessing CanonicalStatus = "processing"
	StatusExempt     CanonicalStatus = "exempt"
	StatusDirect     CanonicalStatus = "direct"
)

var gatewayBuckets = map[string]Bucket{
	"RECEIVED":               BucketPaid,
	"CONFIRMED":              BucketPaid,
	"RECEIVED_IN_CASH":       BucketPaid,
	"OVERDUE":                BucketOverdue,
	"PENDING":                BucketPending,
	"AWAITING_PAYMENT":       BucketPending,
	"AWAITING_RISK_ANALYSIS": BucketProcessing,
	"REFUNDED":               BucketRefunded,
	"CANCELLED":              BucketCancelled,
}

// ClassifyPayment maps a raw gateway status to its bucket. Unknown statuses
// report ok=false and must not be counted anywhere.
func ClassifyPayment(raw string) (Bucket, bool) {
	b, ok := gatewayBuckets[strings.ToUpper(strings.TrimSpace(raw))]
	return b, ok
}

// ParseCanonicalStatus accepts the canonical names used by filters and API
// query strings.
func ParseCanonicalStatus(s string) (CanonicalStatus, bool) {
	switch st := CanonicalStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPaid, StatusPending, StatusOverdue, StatusRefunded,
		StatusCancelled, StatusProcessing, StatusExempt, StatusDirect:
		return st, true
	}
	return "", false
}

// IsSettledAdministratively reports whether the registration is paid outside
// the gateway (exempt or paid directly to the organiser).
func IsSettledAdministratively(r models.Registration) bool {
	return r.PaymentStatus == models.PaymentStatusExempt ||
		r.PaymentStatus == models.PaymentStatusDirectPayment
}

func bucketSet(payments []models.Payment) map[Bucket]bool {
	seen := make(map[Bucket]bool, len(payments))
	for _, p := range payments {
		if b, ok := ClassifyPayment(p.Status); ok {
			seen[b] = true
		}
	}
	return seen
}

// ClassifyRegistration returns the single badge status of a registration.
//
// Precedence, first match wins: refunded or cancelled, overdue, pending or
// processing, direct payment flag, exempt flag, any paid installment, and
// pending as the fallback. Cancelled payments share the refunded badge.
func ClassifyRegistration(r models.Registration) CanonicalStatus {
	seen := bucketSet(r.Payments)
	switch {
	case seen[BucketRefunded] || seen[BucketCancelled]:
		return StatusRefunded
	case seen[BucketOverdue]:
		return StatusOverdue
	case seen[BucketPending] || seen[BucketProcessing]:
		return StatusPending
	case r.PaymentStatus == models.PaymentStatusDirectPayment:
		return StatusDirect
	case r.PaymentStatus == models.PaymentStatusExempt:
		return StatusExempt
	case seen[BucketPaid]:
		return StatusPaid
	}
	return StatusPending
}

// HasInFlight reports whether any payment still waits on the gateway.
func HasInFlight(payments []models.Payment) bool {
	for _, p := range payments {
		if b, ok := ClassifyPayment(p.Status); ok && (b == BucketPending || b == BucketProcessing) {
			return true
		}
	}
	return false
}

// UnknownStatuses lists raw statuses that map to no bucket, once each, in the
// order they are first seen.
func UnknownStatuses(regs []models.Registration) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range regs {
		for _, p := range r.Payments {
			if _, ok := ClassifyPayment(p.Status); ok {
				continue
			}
			if !seen[p.Status] {
				seen[p.Status] = true
				out = append(out, p.Status)
			}
		}
	}
	return out
}
