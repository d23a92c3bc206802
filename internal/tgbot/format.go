package tgbot

import (
	"fmt"
	"strings"
	"unicode/utf16"

	"karting-finance/internal/dashboard"
	"karting-finance/internal/finance"
	"karting-finance/internal/util"
)

// maxMessageLen is Telegram's text limit, counted in UTF-16 code units.
const maxMessageLen = 4096

var statusLabels = map[finance.CanonicalStatus]string{
	finance.StatusPaid:       "✅ оплачено",
	finance.StatusPending:    "🕓 ожидает",
	finance.StatusOverdue:    "⏰ просрочено",
	finance.StatusRefunded:   "↩️ возврат",
	finance.StatusCancelled:  "❌ отменено",
	finance.StatusProcessing: "🔎 проверка",
	finance.StatusExempt:     "🎟 освобождён",
	finance.StatusDirect:     "🤝 оплата напрямую",
}

func statusLabel(s finance.CanonicalStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func formatResult(b *strings.Builder, indent string, r finance.AggregateResult) {
	fmt.Fprintf(b, "%sСумма: %s | оплачено %s | ожидает %s | просрочено %s\n",
		indent,
		util.FormatMoney(r.TotalAmount),
		util.FormatMoney(r.PaidAmount),
		util.FormatMoney(r.PendingAmount),
		util.FormatMoney(r.OverdueAmount))
	fmt.Fprintf(b, "%sРегистраций: %d (✅ %d, 🕓 %d, ⏰ %d)\n",
		indent, r.TotalRegistrations, r.PaidCount, r.PendingCount, r.OverdueCount)
}

func formatChampionship(ov dashboard.ChampionshipOverview) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "💰 Чемпионат %s\n", ov.ChampionshipID)
	formatResult(b, "", ov.Totals)

	for _, season := range ov.Seasons {
		name := season.Name
		if name == "" {
			name = season.SeasonID
		}
		fmt.Fprintf(b, "\n🏆 Сезон %s\n", name)
		if season.Result.TotalRegistrations > 0 {
			formatResult(b, "", season.Result)
		}
		for _, st := range season.Stages {
			title := st.Title
			if title == "" {
				title = st.StageID
			}
			date := "дата не указана"
			if !st.Date.IsZero() {
				date = st.Date.Format("02.01.2006")
			}
			fmt.Fprintf(b, "  🏁 %s (%s)\n", title, date)
			formatResult(b, "    ", st.Result)
		}
	}

	if len(ov.UnknownStatuses) > 0 {
		fmt.Fprintf(b, "\n⚠️ Неизвестные статусы платежей не учтены: %s\n", strings.Join(ov.UnknownStatuses, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPilots(rows []finance.PilotBreakdown) string {
	b := &strings.Builder{}
	for i, p := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "%s - %s, %s, взносы %s",
			p.PilotName,
			statusLabel(p.Status),
			util.FormatMoney(p.Amount),
			util.FormatInstallments(p.Installments.Paid, p.Installments.Total))
		if p.Amounts.Overdue > 0 {
			fmt.Fprintf(b, ", просрочено %s", util.FormatMoney(p.Amounts.Overdue))
		}
	}
	return b.String()
}

func formatUser(ov dashboard.UserOverview) string {
	b := &strings.Builder{}
	b.WriteString("💳 Мои взносы\n")
	formatResult(b, "", ov.Totals)
	for _, r := range ov.Registrations {
		fmt.Fprintf(b, "\n%s (сезон %s): %s\n", r.PilotName, r.SeasonID, statusLabel(r.Status))
		fmt.Fprintf(b, "  Сумма %s, оплачено %s, взносы %s\n",
			util.FormatMoney(r.Amount),
			util.FormatMoney(r.Amounts.Paid),
			util.FormatInstallments(r.Installments.Paid, r.Installments.Total))
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitMessage breaks text on line boundaries into chunks of at most limit
// UTF-16 code units. A single longer line is cut hard.
func splitMessage(text string, limit int) []string {
	var (
		out  []string
		cur  strings.Builder
		size int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			size = 0
		}
	}
	for _, line := range strings.Split(text, "\n") {
		n := utf16Len(line)
		if size > 0 && size+1+n > limit {
			flush()
		}
		for n > limit {
			head := cutUTF16(line, limit)
			flush()
			out = append(out, head)
			line = line[len(head):]
			n = utf16Len(line)
		}
		if size > 0 {
			cur.WriteByte('\n')
			size++
		}
		cur.WriteString(line)
		size += n
	}
	flush()
	return out
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// cutUTF16 returns the longest prefix of s that fits in limit code units.
func cutUTF16(s string, limit int) string {
	n := 0
	for i, r := range s {
		w := 1
		if r >= 0x10000 {
			w = 2
		}
		if n+w > limit {
			return s[:i]
		}
		n += w
	}
	return s
}
