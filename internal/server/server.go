package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"karting-finance/internal/config"
	"karting-finance/internal/dashboard"
	"karting-finance/internal/finance"
	"karting-finance/internal/middleware"
	"karting-finance/internal/payments"
	"karting-finance/internal/store"
	"karting-finance/internal/util"
)

// Notifier receives a short text for every applied payment webhook.
type Notifier interface {
	NotifyAdmins(text string)
}

type Server struct {
	cfg        config.Config
	svc        *dashboard.Service
	gateway    payments.Gateway
	notify     Notifier
	log        *slog.Logger
	httpServer *http.Server
}

func NewServer(cfg config.Config, svc *dashboard.Service, gateway payments.Gateway, notify Notifier, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		svc:     svc,
		gateway: gateway,
		notify:  notify,
		log:     logger.With("component", "http"),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/pay/stub", s.stubPayPage)
	r.Post("/webhooks/{provider}", s.webhook)
	r.Get("/export/stage.csv", s.exportStageCSV)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(&middleware.JWTConfig{SecretKey: s.cfg.APIJWTSecret}))

		r.Get("/users/{id}/finance", s.userFinance)
		r.Get("/sync/status", s.syncStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/championships/{id}/finance", s.championshipFinance)
			r.Get("/championships/{id}/pilots", s.championshipPilots)
			r.Post("/championships/{id}/sync", s.championshipSync)
			r.Patch("/payments/{id}/due-date", s.updateDueDate)
		})
	})

	return r
}

func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.Router(),
	}
	s.log.Info("listening", "addr", s.cfg.HTTPAddr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) loadFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("load financial data", "path", r.URL.Path, "err", err)
	http.Error(w, "failed to load financial data", http.StatusInternalServerError)
}

// ---------- API ----------

func (s *Server) championshipFinance(w http.ResponseWriter, r *http.Request) {
	refresh := util.NormalizeBoolRU(r.URL.Query().Get("refresh"))
	ov, err := s.svc.Championship(r.Context(), chi.URLParam(r, "id"), refresh)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) championshipPilots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if st := q.Get("status"); st != "" && st != finance.StatusAll {
		if _, ok := finance.ParseCanonicalStatus(st); !ok {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
	}
	rows, err := s.svc.Pilots(r.Context(), chi.URLParam(r, "id"), q.Get("status"), q.Get("q"), util.NormalizeBoolRU(q.Get("refresh")))
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) championshipSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Refresh(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": res.BatchID,
		"checked":  res.Checked,
		"stale":    res.Stale,
		"synced":   res.Synced,
		"failed":   res.Failed,
		"replaced": res.Replaced,
	})
}

func (s *Server) userFinance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	caller, _ := middleware.GetUserID(r.Context())
	if caller != userID && !middleware.IsAdmin(r.Context()) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	ov, err := s.svc.User(r.Context(), userID, util.NormalizeBoolRU(r.URL.Query().Get("refresh")))
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"syncing": s.svc.Syncing(),
		"ts":      util.NowISO(),
	})
}

func (s *Server) updateDueDate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DueDate string `json:"due_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	due, err := time.Parse("2006-01-02", strings.TrimSpace(req.DueDate))
	if err != nil {
		http.Error(w, "due_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	paymentID := chi.URLParam(r, "id")
	if err := s.svc.UpdateDueDate(r.Context(), paymentID, due); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		s.log.Error("update due date", "payment", paymentID, "err", err)
		http.Error(w, "failed to update due date", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------- Webhooks ----------

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "provider") != s.gateway.Name() {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	headers := map[string]string{}
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	// The stub checkout page cannot sign requests; sign them here on local runs.
	if headers["x-signature"] == "" && s.isLocal() {
		headers["x-signature"] = util.HMACSHA256Hex(s.cfg.PaymentWebhookSecret, string(body))
	}

	ev, err := s.gateway.HandleWebhook(r.Context(), body, headers)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, util.ErrInvalidSignature) {
			status = http.StatusUnauthorized
		}
		s.log.Warn("webhook rejected", "provider", s.gateway.Name(), "err", err)
		http.Error(w, err.Error(), status)
		return
	}

	if err := s.svc.ApplyPaymentEvent(r.Context(), ev); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		s.log.Error("apply webhook", "payment", ev.PaymentID, "err", err)
		http.Error(w, "failed to store payment status", http.StatusInternalServerError)
		return
	}

	if s.notify != nil {
		s.notify.NotifyAdmins("💳 Платёж " + ev.PaymentID + " (регистрация " + ev.RegistrationID + "): " + ev.Status)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":              true,
		"payment_id":      ev.PaymentID,
		"registration_id": ev.RegistrationID,
		"status":          ev.Status,
		"ts":              util.NowISO(),
	})
}

func (s *Server) isLocal() bool {
	return s.cfg.BasePublicURL == "" || strings.Contains(s.cfg.BasePublicURL, "localhost")
}

func (s *Server) stubPayPage(w http.ResponseWriter, r *http.Request) {
	invoice := r.URL.Query().Get("invoice")
	if invoice == "" {
		http.Error(w, "invoice required", http.StatusBadRequest)
		return
	}
	invoiceJSON, _ := json.Marshal(invoice)

	html := `<!doctype html><html><head><meta charset="utf-8"><title>Stub Pay</title></head><body>
<h2>Оплата (тестовый провайдер)</h2>
<p>Invoice: <code id="inv"></code></p>
<button onclick="send('RECEIVED')">Оплатить (RECEIVED)</button>
<button onclick="send('OVERDUE')">Просрочить (OVERDUE)</button>
<button onclick="send('CANCELLED')">Отменить (CANCELLED)</button>
<pre id="out"></pre>
<script>
const invoice = ` + string(invoiceJSON) + `;
document.getElementById("inv").textContent = invoice;
async function send(status){
  const body = JSON.stringify({invoice, status});
  const res = await fetch("/webhooks/stub", {method:"POST", headers: {"Content-Type":"application/json"}, body});
  document.getElementById("out").textContent = await res.text();
}
</script>
</body></html>`
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

// ---------- CSV export ----------

func (s *Server) exportStageCSV(w http.ResponseWriter, r *http.Request) {
	stageID := r.URL.Query().Get("stage_id")
	token := r.URL.Query().Get("token")
	if stageID == "" || token == "" {
		http.Error(w, "stage_id and token required", http.StatusBadRequest)
		return
	}
	if !util.VerifyExportToken(s.cfg.PaymentWebhookSecret, stageID, token) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	rows, err := s.svc.Stage(r.Context(), stageID)
	if err != nil {
		s.loadFailed(w, r, err)
		return
	}

	b := strings.Builder{}
	b.WriteString("pilot_name,pilot_email,status,installments,amount,paid,pending,overdue,refunded,cancelled,processing\n")
	for _, p := range rows {
		b.WriteString(strings.Join([]string{
			escapeCSV(p.PilotName),
			escapeCSV(p.PilotEmail),
			string(p.Status),
			util.FormatInstallments(p.Installments.Paid, p.Installments.Total),
			util.FormatMoney(p.Amount),
			util.FormatMoney(p.Amounts.Paid),
			util.FormatMoney(p.Amounts.Pending),
			util.FormatMoney(p.Amounts.Overdue),
			util.FormatMoney(p.Amounts.Refunded),
			util.FormatMoney(p.Amounts.Cancelled),
			util.FormatMoney(p.Amounts.Processing),
		}, ","))
		b.WriteString("\n")
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="stage_`+stageID+`.csv"`)
	_, _ = w.Write([]byte(b.String()))
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, "\",\n\r") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
