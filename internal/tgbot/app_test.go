package tgbot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"karting-finance/internal/config"
	"karting-finance/internal/dashboard"
	"karting-finance/internal/finance"
	"karting-finance/internal/middleware"
	"karting-finance/internal/models"
	"karting-finance/internal/payments/stub"
	"karting-finance/internal/paysync"
	"karting-finance/internal/store"
	"karting-finance/internal/util"
)

const adminID int64 = 1

type fakeSender struct {
	sent     []tgbotapi.MessageConfig
	requests int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

type memStore struct {
	regs []models.Registration
}

func (m *memStore) ListRegistrations(_ context.Context, scope models.Scope) ([]models.Registration, error) {
	var out []models.Registration
	for _, r := range m.regs {
		if (scope.ChampionshipID == "" || r.ChampionshipID == scope.ChampionshipID) &&
			(scope.UserID == "" || r.UserID == scope.UserID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetPaymentData(_ context.Context, id string) ([]models.Payment, error) {
	for _, r := range m.regs {
		if r.ID == id {
			return r.Payments, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdatePaymentDueDate(context.Context, string, time.Time) error { return nil }
func (m *memStore) UpdatePaymentStatus(context.Context, string, string, string) error {
	return nil
}
func (m *memStore) ListChampionships(context.Context) ([]string, error) { return []string{"c1"}, nil }
func (m *memStore) ListSeasons(context.Context, string) ([]models.Season, error) {
	return []models.Season{{SeasonID: "s1", ChampionshipID: "c1", Name: "2026"}}, nil
}
func (m *memStore) ListStages(context.Context, string) ([]models.Stage, error) {
	return []models.Stage{{StageID: "st1", SeasonID: "s1", Title: "Opening", Date: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)}}, nil
}
func (m *memStore) Close() error { return nil }

func newTestApp() (*App, *fakeSender) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := &memStore{regs: []models.Registration{
		{
			ID: "r1", ChampionshipID: "c1", SeasonID: "s1", UserID: "42", PilotName: "Ana",
			Amount: 300, InscriptionType: models.InscriptionByStage,
			Stages: []models.StageRef{{StageID: "st1"}},
			Payments: []models.Payment{
				{PaymentID: "p1", Status: "RECEIVED", Value: 150, InstallmentCount: 2},
				{PaymentID: "p2", Status: "OVERDUE", Value: 150, InstallmentCount: 2},
			},
		},
		{
			ID: "r2", ChampionshipID: "c1", SeasonID: "s1", UserID: "7", PilotName: "Bruno",
			Amount: 500, InscriptionType: models.InscriptionBySeason,
			Payments: []models.Payment{{PaymentID: "p3", Status: "RECEIVED", Value: 500}},
		},
	}}
	gw := stub.New("hook-secret", "https://karting.example")
	svc := dashboard.New(st, paysync.New(st, gw, logger), logger)
	cfg := config.Config{
		AdminTGIDs:           map[int64]bool{adminID: true},
		APIJWTSecret:         "jwt-secret",
		PaymentWebhookSecret: "hook-secret",
		BasePublicURL:        "https://karting.example",
	}
	s := &fakeSender{}
	return newApp(cfg, s, svc, gw, logger), s
}

func message(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{From: &tgbotapi.User{ID: from}, Text: text}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct{ in, cmd, arg string }{
		{"/finance c1", "/finance", "c1"},
		{"  /Sync@karting_bot   c2  ", "/sync", "c2"},
		{"/mypayments", "/mypayments", ""},
		{"hello there", "hello", "there"},
		{"", "", ""},
	}
	for _, tt := range tests {
		cmd, arg := splitCommand(tt.in)
		if cmd != tt.cmd || arg != tt.arg {
			t.Errorf("splitCommand(%q) = %q, %q", tt.in, cmd, arg)
		}
	}
}

func TestAdminCommandsDeniedToPilots(t *testing.T) {
	a, s := newTestApp()
	for _, cmd := range []string{"/finance c1", "/sync c1", "/dashboard c1", "/export st1", "/pilots c1"} {
		if err := a.handleMessage(context.Background(), message(42, cmd)); err != nil {
			t.Fatal(err)
		}
		if got := s.last(t).Text; got != "Доступ запрещён." {
			t.Errorf("%s -> %q", cmd, got)
		}
	}
}

func TestFinanceCommand(t *testing.T) {
	a, s := newTestApp()
	if err := a.handleMessage(context.Background(), message(adminID, "/finance c1")); err != nil {
		t.Fatal(err)
	}
	msg := s.last(t)
	for _, want := range []string{"Сезон 2026", "Opening (03.05.2026)", "просрочено 150.00"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("text lacks %q:\n%s", want, msg.Text)
		}
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("keyboard = %+v", msg.ReplyMarkup)
	}
	if data := kb.InlineKeyboard[1][0].CallbackData; data == nil || *data != "a:export:st1" {
		t.Errorf("export button = %v", data)
	}
}

func TestPilotsCommand(t *testing.T) {
	a, s := newTestApp()

	if err := a.handleMessage(context.Background(), message(adminID, "/pilots c1 overdue")); err != nil {
		t.Fatal(err)
	}
	text := s.last(t).Text
	if !strings.HasPrefix(text, "Ana - ⏰ просрочено") || strings.Contains(text, "Bruno") {
		t.Errorf("text = %q", text)
	}

	if err := a.handleMessage(context.Background(), message(adminID, "/pilots c1 bogus")); err != nil {
		t.Fatal(err)
	}
	if text := s.last(t).Text; !strings.HasPrefix(text, "Неизвестный статус") {
		t.Errorf("text = %q", text)
	}
}

func TestMyPaymentsOffersCheckout(t *testing.T) {
	a, s := newTestApp()
	if err := a.handleMessage(context.Background(), message(42, "/mypayments")); err != nil {
		t.Fatal(err)
	}
	msg := s.last(t)
	if !strings.Contains(msg.Text, "взносы 1/2") {
		t.Errorf("text = %q", msg.Text)
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 1 {
		t.Fatalf("keyboard = %+v", msg.ReplyMarkup)
	}
	link := kb.InlineKeyboard[0][0].URL
	if link == nil || !strings.HasPrefix(*link, "https://karting.example/pay/stub?invoice=r1:p2:") {
		t.Errorf("checkout link = %v", link)
	}
}

func TestMyPaymentsWithoutRegistrations(t *testing.T) {
	a, s := newTestApp()
	if err := a.handleMessage(context.Background(), message(99, "/mypayments")); err != nil {
		t.Fatal(err)
	}
	if text := s.last(t).Text; text != "У тебя пока нет регистраций." {
		t.Errorf("text = %q", text)
	}
}

func TestDashboardLinkCarriesAdminToken(t *testing.T) {
	a, s := newTestApp()
	if err := a.handleMessage(context.Background(), message(adminID, "/dashboard c1")); err != nil {
		t.Fatal(err)
	}
	text := s.last(t).Text
	i := strings.Index(text, "https://")
	if i < 0 {
		t.Fatalf("text = %q", text)
	}
	u, err := url.Parse(text[i:])
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/api/championships/c1/finance" {
		t.Errorf("path = %s", u.Path)
	}
	claims, err := middleware.ParseToken(u.Query().Get("access_token"), "jwt-secret")
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "1" || !claims.Admin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestExportCallback(t *testing.T) {
	a, s := newTestApp()
	q := &tgbotapi.CallbackQuery{ID: "q", From: &tgbotapi.User{ID: adminID}, Data: "a:export:st1"}
	if err := a.handleCallback(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if s.requests != 1 {
		t.Errorf("callback not acknowledged")
	}
	want := "token=" + util.ExportToken("hook-secret", "st1")
	if text := s.last(t).Text; !strings.Contains(text, want) {
		t.Errorf("text = %q", text)
	}

	q.From = &tgbotapi.User{ID: 42}
	if err := a.handleCallback(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if text := s.last(t).Text; text != "Доступ запрещён." {
		t.Errorf("text = %q", text)
	}
}

func TestNotifyAdmins(t *testing.T) {
	a, s := newTestApp()
	a.NotifyAdmins("ping")
	if len(s.sent) != 1 || s.sent[0].ChatID != adminID || s.sent[0].Text != "ping" {
		t.Errorf("sent = %+v", s.sent)
	}
}

func TestFormatPilots(t *testing.T) {
	rows := []finance.PilotBreakdown{
		{PilotName: "Ana", Status: finance.StatusPaid, Amount: 100, Installments: finance.Installments{Paid: 1, Total: 1}},
		{PilotName: "Bob", Status: finance.StatusOverdue, Amount: 50, Installments: finance.Installments{Paid: 0, Total: 2},
			Amounts: finance.BucketAmounts{Overdue: 25}},
	}
	want := "Ana - ✅ оплачено, 100.00, взносы 1/1\nBob - ⏰ просрочено, 50.00, взносы 0/2, просрочено 25.00"
	if got := formatPilots(rows); got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestPilotsCommand_SplitsLongList(t *testing.T) {
	a, s := newTestApp()
	st := &memStore{}
	for i := 0; i < 300; i++ {
		st.regs = append(st.regs, models.Registration{
			ID: fmt.Sprintf("r%03d", i), ChampionshipID: "c1", SeasonID: "s1",
			UserID: fmt.Sprint(1000 + i), PilotName: fmt.Sprintf("Пилот номер %03d", i),
			Amount: 500, InscriptionType: models.InscriptionBySeason,
			Payments: []models.Payment{{PaymentID: fmt.Sprintf("p%03d", i), Status: "OVERDUE", Value: 500}},
		})
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a.svc = dashboard.New(st, paysync.New(st, a.pay, logger), logger)

	if err := a.handleMessage(context.Background(), message(adminID, "/pilots c1")); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) < 2 {
		t.Fatalf("sent %d messages, want several", len(s.sent))
	}
	lines := 0
	for _, m := range s.sent {
		if n := len(utf16.Encode([]rune(m.Text))); n > maxMessageLen {
			t.Errorf("message of %d code units", n)
		}
		lines += strings.Count(m.Text, "\n") + 1
	}
	if lines != 300 {
		t.Errorf("lines = %d, want 300", lines)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("a\nbb\nccc", 5); strings.Join(got, "|") != "a\nbb|ccc" {
		t.Errorf("got %q", got)
	}
	if got := splitMessage("abcdefg", 3); strings.Join(got, "|") != "abc|def|g" {
		t.Errorf("got %q", got)
	}
	if got := splitMessage("", 10); len(got) != 0 {
		t.Errorf("got %q", got)
	}
}
