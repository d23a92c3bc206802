package payments

import (
	"fmt"

	"karting-finance/internal/config"
	"karting-finance/internal/payments/httpgw"
	"karting-finance/internal/payments/stub"
)

func NewGateway(cfg config.Config) (Gateway, error) {
	switch cfg.PaymentProvider {
	case "stub":
		return stub.New(cfg.PaymentWebhookSecret, cfg.BasePublicURL), nil
	case "http":
		if cfg.PaymentGatewayURL == "" {
			return nil, fmt.Errorf("PAYMENT_GATEWAY_URL is empty")
		}
		return httpgw.New(cfg.PaymentGatewayURL, cfg.PaymentGatewayToken, cfg.PaymentWebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.PaymentProvider)
	}
}
