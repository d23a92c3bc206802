package tgbot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"karting-finance/internal/config"
	"karting-finance/internal/dashboard"
	"karting-finance/internal/finance"
	"karting-finance/internal/middleware"
	"karting-finance/internal/payments"
	"karting-finance/internal/util"
)

// sender is the part of *tgbotapi.BotAPI the handlers use.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type App struct {
	cfg config.Config
	api *tgbotapi.BotAPI
	bot sender
	svc *dashboard.Service
	pay payments.Gateway
	log *slog.Logger
}

func New(cfg config.Config, svc *dashboard.Service, pay payments.Gateway, logger *slog.Logger) (*App, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	a := newApp(cfg, b, svc, pay, logger)
	a.api = b
	return a, nil
}

func newApp(cfg config.Config, bot sender, svc *dashboard.Service, pay payments.Gateway, logger *slog.Logger) *App {
	return &App{
		cfg: cfg,
		bot: bot,
		svc: svc,
		pay: pay,
		log: logger.With("component", "tgbot"),
	}
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.api.GetUpdatesChan(u)
	defer a.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				if err := a.handleMessage(ctx, upd.Message); err != nil {
					a.log.Error("handle message", "chat", upd.Message.Chat.ID, "err", err)
				}
			} else if upd.CallbackQuery != nil {
				if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
					a.log.Error("handle callback", "data", upd.CallbackQuery.Data, "err", err)
				}
			}
		}
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.bot.Send(msg)
	return err
}

// NotifyAdmins sends text to every configured admin, logging failures.
func (a *App) NotifyAdmins(text string) {
	for id := range a.cfg.AdminTGIDs {
		if err := a.SendText(id, text); err != nil {
			a.log.Warn("notify admin", "tg_id", id, "err", err)
		}
	}
}

func (a *App) isAdmin(tgID int64) bool {
	return a.cfg.AdminTGIDs[tgID]
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil {
		return nil
	}
	tgID := m.From.ID
	cmd, arg := splitCommand(m.Text)

	switch cmd {
	case "/start", "/help":
		return a.showHelp(tgID)
	case "/mypayments":
		return a.showMyPayments(ctx, tgID)
	}

	if !a.isAdmin(tgID) {
		if cmd != "" {
			return a.SendText(tgID, "Доступ запрещён.")
		}
		return a.showHelp(tgID)
	}

	switch cmd {
	case "/finance":
		if arg == "" {
			return a.SendText(tgID, "Укажи чемпионат: /finance <id>")
		}
		return a.showChampionship(ctx, tgID, arg, false)
	case "/pilots":
		champ, status := splitCommand(arg)
		if champ == "" {
			return a.SendText(tgID, "Укажи чемпионат: /pilots <id> [paid|pending|overdue|refunded|exempt|direct]")
		}
		return a.showPilots(ctx, tgID, champ, status)
	case "/sync":
		if arg == "" {
			return a.SendText(tgID, "Укажи чемпионат: /sync <id>")
		}
		return a.syncChampionship(ctx, tgID, arg)
	case "/dashboard":
		if arg == "" {
			return a.SendText(tgID, "Укажи чемпионат: /dashboard <id>")
		}
		return a.sendDashboardLink(tgID, arg)
	case "/export":
		if arg == "" {
			return a.SendText(tgID, "Укажи этап: /export <stage_id>")
		}
		return a.SendText(tgID, "📤 CSV выгрузка (ссылка): "+a.exportURL(arg))
	}
	return a.showHelp(tgID)
}

func splitCommand(txt string) (string, string) {
	txt = strings.TrimSpace(txt)
	cmd, arg, _ := strings.Cut(txt, " ")
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

func (a *App) showHelp(tgID int64) error {
	text := "💰 Финансы чемпионата\n/mypayments - мои взносы"
	if a.isAdmin(tgID) {
		text += "\n\n🛠 Админ:\n/finance <чемпионат> - сводка по сезонам и этапам" +
			"\n/pilots <чемпионат> [статус] - пилоты" +
			"\n/sync <чемпионат> - обновить статусы платежей" +
			"\n/dashboard <чемпионат> - ссылка на API" +
			"\n/export <этап> - CSV по этапу"
	}
	return a.SendText(tgID, text)
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	tgID := q.From.ID
	data := q.Data

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.bot.Request(cb)

	if strings.HasPrefix(data, "u:") {
		if data == "u:mypayments" {
			return a.showMyPayments(ctx, tgID)
		}
		return nil
	}
	if !strings.HasPrefix(data, "a:") {
		return nil
	}
	if !a.isAdmin(tgID) {
		return a.SendText(tgID, "Доступ запрещён.")
	}

	switch {
	case strings.HasPrefix(data, "a:refresh:"):
		return a.showChampionship(ctx, tgID, strings.TrimPrefix(data, "a:refresh:"), true)
	case strings.HasPrefix(data, "a:overdue:"):
		return a.showPilots(ctx, tgID, strings.TrimPrefix(data, "a:overdue:"), string(finance.StatusOverdue))
	case strings.HasPrefix(data, "a:export:"):
		return a.SendText(tgID, "📤 CSV выгрузка (ссылка): "+a.exportURL(strings.TrimPrefix(data, "a:export:")))
	}
	return nil
}

// ---------- Screens ----------

func (a *App) showChampionship(ctx context.Context, tgID int64, champID string, refresh bool) error {
	ov, err := a.svc.Championship(ctx, champID, refresh)
	if err != nil {
		a.log.Error("championship overview", "championship", champID, "err", err)
		return a.SendText(tgID, "Не удалось загрузить финансовые данные.")
	}
	if len(ov.Seasons) == 0 {
		return a.SendText(tgID, "Регистраций в чемпионате "+champID+" пока нет.")
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Обновить статусы", "a:refresh:"+champID),
			tgbotapi.NewInlineKeyboardButtonData("⏰ Просрочки", "a:overdue:"+champID),
		),
	}
	for _, season := range ov.Seasons {
		for _, st := range season.Stages {
			title := st.Title
			if title == "" {
				title = st.StageID
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📤 CSV: "+title, "a:export:"+st.StageID),
			))
		}
	}

	msg := tgbotapi.NewMessage(tgID, formatChampionship(ov))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) showPilots(ctx context.Context, tgID int64, champID, status string) error {
	if status != "" && status != finance.StatusAll {
		if _, ok := finance.ParseCanonicalStatus(status); !ok {
			return a.SendText(tgID, "Неизвестный статус: "+status)
		}
	}
	rows, err := a.svc.Pilots(ctx, champID, status, "", false)
	if err != nil {
		a.log.Error("pilots", "championship", champID, "err", err)
		return a.SendText(tgID, "Не удалось загрузить финансовые данные.")
	}
	if len(rows) == 0 {
		return a.SendText(tgID, "Пилотов не найдено.")
	}
	for _, chunk := range splitMessage(formatPilots(rows), maxMessageLen) {
		if err := a.SendText(tgID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) showMyPayments(ctx context.Context, tgID int64) error {
	ov, err := a.svc.User(ctx, strconv.FormatInt(tgID, 10), false)
	if err != nil {
		a.log.Error("user overview", "tg_id", tgID, "err", err)
		return a.SendText(tgID, "Не удалось загрузить финансовые данные.")
	}
	if len(ov.Registrations) == 0 {
		return a.SendText(tgID, "У тебя пока нет регистраций.")
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	if co, ok := a.pay.(payments.Checkout); ok {
		for _, r := range ov.Registrations {
			open, err := a.svc.OpenPayments(ctx, r.RegistrationID)
			if err != nil {
				a.log.Warn("open payments", "registration", r.RegistrationID, "err", err)
				continue
			}
			for _, p := range open {
				label := fmt.Sprintf("💳 Оплатить %s (%s)", util.FormatMoney(p.Value), r.SeasonID)
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonURL(label, co.CheckoutURL(r.RegistrationID, p.PaymentID)),
				))
			}
		}
	}

	msg := tgbotapi.NewMessage(tgID, formatUser(ov))
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) syncChampionship(ctx context.Context, tgID int64, champID string) error {
	if a.svc.Syncing() {
		return a.SendText(tgID, "⏳ Синхронизация уже идёт, попробуй позже.")
	}
	res, err := a.svc.Refresh(ctx, champID)
	if err != nil {
		a.log.Error("sync", "championship", champID, "err", err)
		return a.SendText(tgID, "Не удалось загрузить финансовые данные.")
	}
	return a.SendText(tgID, fmt.Sprintf(
		"🔄 Синхронизация %s\nПроверено: %d\nОжидали оплаты: %d\nОбновлено: %d\nОшибок: %d",
		champID, res.Checked, res.Stale, res.Replaced, res.Failed,
	))
}

func (a *App) sendDashboardLink(tgID int64, champID string) error {
	token, err := middleware.GenerateToken(strconv.FormatInt(tgID, 10), true, a.cfg.APIJWTSecret)
	if err != nil {
		return err
	}
	link := a.baseURL() + "/api/championships/" + url.PathEscape(champID) + "/finance?access_token=" + token
	return a.SendText(tgID, "📊 Дашборд (ссылка действует 24 часа): "+link)
}

func (a *App) exportURL(stageID string) string {
	token := util.ExportToken(a.cfg.PaymentWebhookSecret, stageID)
	return a.baseURL() + "/export/stage.csv?stage_id=" + url.QueryEscape(stageID) + "&token=" + token
}

func (a *App) baseURL() string {
	if a.cfg.BasePublicURL == "" {
		return "http://localhost" + a.cfg.HTTPAddr
	}
	return a.cfg.BasePublicURL
}
