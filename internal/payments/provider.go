package payments

import (
	"context"

	"karting-finance/internal/models"
)

type Gateway interface {
	Name() string

	// SyncPaymentStatus asks the gateway to refresh the payments of one
	// registration. Fresh data is read back from the store afterwards.
	SyncPaymentStatus(ctx context.Context, registrationID string) error

	// HandleWebhook validates a webhook call and extracts the status change.
	HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (models.PaymentEvent, error)
}

// Checkout is implemented by gateways that can hand out a payment link for
// a single installment.
type Checkout interface {
	CheckoutURL(registrationID, paymentID string) string
}
