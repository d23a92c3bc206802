package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"karting-finance/internal/models"
	"karting-finance/internal/util"
)

// Stub gateway for local runs:
// - CheckoutURL: link to /pay/stub?invoice=<registration>:<payment>:<nonce>
// - Webhook: POST /webhooks/stub signed with X-Signature (HMAC SHA-256)
// - SyncPaymentStatus: records the request; statuses only move via the webhook

type Provider struct {
	secret  string
	baseURL string

	mu     sync.Mutex
	synced map[string]int
}

func New(secret, baseURL string) *Provider {
	return &Provider{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		synced:  map[string]int{},
	}
}

func (p *Provider) Name() string { return "stub" }

func (p *Provider) CheckoutURL(registrationID, paymentID string) string {
	invoice := fmt.Sprintf("%s:%s:%s", registrationID, paymentID, uuid.NewString())
	url := "/pay/stub?invoice=" + invoice
	if p.baseURL != "" {
		url = p.baseURL + url
	}
	return url
}

func (p *Provider) SyncPaymentStatus(ctx context.Context, registrationID string) error {
	if registrationID == "" {
		return fmt.Errorf("registration id required")
	}
	p.mu.Lock()
	p.synced[registrationID]++
	p.mu.Unlock()
	return nil
}

// SyncCount reports how many sync requests a registration received.
func (p *Provider) SyncCount(registrationID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.synced[registrationID]
}

type webhookPayload struct {
	Invoice string `json:"invoice"`
	Status  string `json:"status"` // gateway status, e.g. RECEIVED
}

func (p *Provider) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (models.PaymentEvent, error) {
	if !util.VerifyHMACSHA256Hex(p.secret, string(body), headers["x-signature"]) {
		return models.PaymentEvent{}, util.ErrInvalidSignature
	}

	var pl webhookPayload
	if err := json.Unmarshal(body, &pl); err != nil {
		return models.PaymentEvent{}, err
	}

	parts := strings.Split(pl.Invoice, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return models.PaymentEvent{}, fmt.Errorf("bad invoice")
	}

	status := strings.ToUpper(strings.TrimSpace(pl.Status))
	if status == "" {
		status = "RECEIVED"
	}
	return models.PaymentEvent{RegistrationID: parts[0], PaymentID: parts[1], Status: status}, nil
}
