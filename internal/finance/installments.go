package finance

import "karting-finance/internal/models"

type Installments struct {
	Paid  int `json:"paid"`
	Total int `json:"total"`
}

// TrackInstallments derives installment progress for one registration.
//
// Total is the largest installment count hint carried by any payment, else the
// number of payments, else 1. Paid is not clamped to Total: a gateway that
// splits a plan after the hint was recorded can report more paid installments
// than the hint, and the counter shows that as is.
func TrackInstallments(r models.Registration) Installments {
	var out Installments
	hint := 0
	for _, p := range r.Payments {
		if b, ok := ClassifyPayment(p.Status); ok && b == BucketPaid {
			out.Paid++
		}
		if p.InstallmentCount > hint {
			hint = p.InstallmentCount
		}
	}

	switch {
	case hint > 0:
		out.Total = hint
	case len(r.Payments) > 0:
		out.Total = len(r.Payments)
	default:
		out.Total = 1
		if IsSettledAdministratively(r) {
			out.Paid = 1
		}
	}
	return out
}
