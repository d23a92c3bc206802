// Package httpgw talks to a remote payment gateway over HTTP.
package httpgw

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"karting-finance/internal/models"
	"karting-finance/internal/util"
)

// ErrRateLimited is returned when the gateway answers 429.
var ErrRateLimited = errors.New("gateway rate limited")

type Gateway struct {
	baseURL       string
	token         string
	webhookSecret string
	httpClient    *http.Client
}

func New(baseURL, token, webhookSecret string) *Gateway {
	return &Gateway{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		webhookSecret: webhookSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (g *Gateway) Name() string { return "http" }

// SyncPaymentStatus calls POST {base}/registrations/{id}/payments/sync.
func (g *Gateway) SyncPaymentStatus(ctx context.Context, registrationID string) error {
	endpoint := fmt.Sprintf("%s/registrations/%s/payments/sync", g.baseURL, url.PathEscape(registrationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			return fmt.Errorf("%w, retry after %d seconds", ErrRateLimited, seconds)
		}
		return ErrRateLimited
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payment struct {
		ID                string `json:"id"`
		ExternalReference string `json:"externalReference"` // registration id
		Status            string `json:"status"`
	} `json:"payment"`
}

// HandleWebhook accepts calls carrying the shared secret in the
// "x-webhook-token" header.
func (g *Gateway) HandleWebhook(ctx context.Context, body []byte, headers map[string]string) (models.PaymentEvent, error) {
	if g.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(headers["x-webhook-token"]), []byte(g.webhookSecret)) != 1 {
		return models.PaymentEvent{}, util.ErrInvalidSignature
	}

	var pl webhookPayload
	if err := json.Unmarshal(body, &pl); err != nil {
		return models.PaymentEvent{}, err
	}
	if pl.Payment.ID == "" || pl.Payment.ExternalReference == "" || pl.Payment.Status == "" {
		return models.PaymentEvent{}, fmt.Errorf("incomplete webhook payload")
	}
	return models.PaymentEvent{
		PaymentID:      pl.Payment.ID,
		RegistrationID: pl.Payment.ExternalReference,
		Status:         strings.ToUpper(pl.Payment.Status),
	}, nil
}
