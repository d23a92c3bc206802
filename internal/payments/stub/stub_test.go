package stub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"karting-finance/internal/util"
)

func TestCheckoutURL(t *testing.T) {
	p := New("secret", "https://kart.example/")
	u := p.CheckoutURL("r1", "p1")
	if !strings.HasPrefix(u, "https://kart.example/pay/stub?invoice=r1:p1:") {
		t.Errorf("unexpected url %s", u)
	}
	if New("secret", "").CheckoutURL("r1", "p1") == u {
		t.Error("each checkout link should carry a fresh nonce")
	}
}

func TestHandleWebhook(t *testing.T) {
	p := New("secret", "")
	body := `{"invoice":"r1:p2:abc","status":"overdue"}`
	headers := map[string]string{"x-signature": util.HMACSHA256Hex("secret", body)}

	ev, err := p.HandleWebhook(context.Background(), []byte(body), headers)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if ev.RegistrationID != "r1" || ev.PaymentID != "p2" || ev.Status != "OVERDUE" {
		t.Errorf("event = %+v", ev)
	}

	_, err = p.HandleWebhook(context.Background(), []byte(body), map[string]string{"x-signature": "bad"})
	if !errors.Is(err, util.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}

	bad := `{"invoice":"r1"}`
	_, err = p.HandleWebhook(context.Background(), []byte(bad), map[string]string{"x-signature": util.HMACSHA256Hex("secret", bad)})
	if err == nil {
		t.Error("expected bad invoice error")
	}
}

func TestHandleWebhook_DefaultsToReceived(t *testing.T) {
	p := New("secret", "")
	body := `{"invoice":"r1:p2:abc"}`
	ev, err := p.HandleWebhook(context.Background(), []byte(body), map[string]string{"x-signature": util.HMACSHA256Hex("secret", body)})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Status != "RECEIVED" {
		t.Errorf("status = %q", ev.Status)
	}
}

func TestSyncPaymentStatus(t *testing.T) {
	p := New("secret", "")
	_ = p.SyncPaymentStatus(context.Background(), "r1")
	_ = p.SyncPaymentStatus(context.Background(), "r1")
	if p.SyncCount("r1") != 2 {
		t.Errorf("sync count = %d", p.SyncCount("r1"))
	}
	if err := p.SyncPaymentStatus(context.Background(), ""); err == nil {
		t.Error("empty registration id should fail")
	}
}
