package finance

import "karting-finance/internal/models"

// AggregateResult is the summary card of one season or stage group.
type AggregateResult struct {
	PaidAmount         float64 `json:"paid_amount"`
	PendingAmount      float64 `json:"pending_amount"`
	OverdueAmount      float64 `json:"overdue_amount"`
	TotalAmount        float64 `json:"total_amount"`
	TotalRegistrations int     `json:"total_registrations"`
	PaidCount          int     `json:"paid_count"`
	PendingCount       int     `json:"pending_count"`
	OverdueCount       int     `json:"overdue_count"`
}

// BucketAmounts holds the prorated value of a registration's payments per bucket.
type BucketAmounts struct {
	Paid       float64 `json:"paid"`
	Pending    float64 `json:"pending"`
	Overdue    float64 `json:"overdue"`
	Refunded   float64 `json:"refunded"`
	Cancelled  float64 `json:"cancelled"`
	Processing float64 `json:"processing"`
}

func (b *BucketAmounts) add(bucket Bucket, v float64) {
	switch bucket {
	case BucketPaid:
		b.Paid += v
	case BucketPending:
		b.Pending += v
	case BucketOverdue:
		b.Overdue += v
	case BucketRefunded:
		b.Refunded += v
	case BucketCancelled:
		b.Cancelled += v
	case BucketProcessing:
		b.Processing += v
	}
}

// Sum of all six buckets.
func (b BucketAmounts) Sum() float64 {
	return b.Paid + b.Pending + b.Overdue + b.Refunded + b.Cancelled + b.Processing
}

// Amounts classifies the registration's payments into buckets, scaled by
// share. Without a payment list an exempt or direct_payment registration
// counts its whole prorated amount as paid.
func Amounts(r models.Registration, share float64) BucketAmounts {
	var out BucketAmounts
	if len(r.Payments) == 0 {
		if IsSettledAdministratively(r) {
			out.Paid = r.Amount * share
		}
		return out
	}
	for _, p := range r.Payments {
		if b, ok := ClassifyPayment(p.Status); ok {
			out.add(b, p.Value*share)
		}
	}
	return out
}

// CountStatus is the status a registration is counted under in summary cards.
// It is evaluated on the headline amounts only: overdue, then pending, then
// paid (a positive paid amount or the paid flag), with pending as fallback.
// This differs from ClassifyRegistration, which drives the per-pilot badge.
func CountStatus(r models.Registration, amounts BucketAmounts) CanonicalStatus {
	switch {
	case amounts.Overdue > 0:
		return StatusOverdue
	case amounts.Pending > 0:
		return StatusPending
	case amounts.Paid > 0 || r.PaymentStatus == models.PaymentStatusPaid:
		return StatusPaid
	}
	return StatusPending
}

// Aggregate sums the headline buckets of regs using share for proration.
// Refunded, cancelled and processing amounts are left out of the result;
// callers needing them use Breakdown.
func Aggregate(regs []models.Registration, share ShareFunc) AggregateResult {
	var res AggregateResult
	for _, r := range regs {
		s := share(r)
		amounts := Amounts(r, s)

		res.TotalRegistrations++
		res.TotalAmount += r.Amount * s
		res.PaidAmount += amounts.Paid
		res.PendingAmount += amounts.Pending
		res.OverdueAmount += amounts.Overdue

		switch CountStatus(r, amounts) {
		case StatusOverdue:
			res.OverdueCount++
		case StatusPaid:
			res.PaidCount++
		default:
			res.PendingCount++
		}
	}
	return res
}

// PilotBreakdown is the financial-tab row of one registration.
type PilotBreakdown struct {
	RegistrationID  string                 `json:"registration_id"`
	UserID          string                 `json:"user_id"`
	PilotName       string                 `json:"pilot_name"`
	PilotEmail      string                 `json:"pilot_email"`
	SeasonID        string                 `json:"season_id"`
	InscriptionType models.InscriptionType `json:"inscription_type"`
	Amount          float64                `json:"amount"`
	Status          CanonicalStatus        `json:"status"`
	Installments    Installments           `json:"installments"`
	Amounts         BucketAmounts          `json:"amounts"`
}

func Breakdown(r models.Registration, share ShareFunc) PilotBreakdown {
	s := share(r)
	return PilotBreakdown{
		RegistrationID:  r.ID,
		UserID:          r.UserID,
		PilotName:       r.PilotName,
		PilotEmail:      r.PilotEmail,
		SeasonID:        r.SeasonID,
		InscriptionType: r.InscriptionType,
		Amount:          r.Amount * s,
		Status:          ClassifyRegistration(r),
		Installments:    TrackInstallments(r),
		Amounts:         Amounts(r, s),
	}
}
