package sheets

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"karting-finance/internal/models"
	"karting-finance/internal/store"
)

const (
	SheetSeasons       = "Seasons"
	SheetStages        = "Stages"
	SheetRegistrations = "Registrations"
	SheetPayments      = "Payments"
)

const dateLayout = "2006-01-02"

var _ store.Store = (*Client)(nil)

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	values, err := c.values.get(ctx, sheet+"!A:Z")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sheet, err)
	}
	return values, nil
}

func (c *Client) updateCell(ctx context.Context, sheet, a1 string, value interface{}) error {
	return c.values.update(ctx, sheet+"!"+a1, [][]interface{}{{value}})
}

// ---------- Seasons ----------
// season_id | championship_id | name

func (c *Client) ListSeasons(ctx context.Context, championshipID string) ([]models.Season, error) {
	values, err := c.readAll(ctx, SheetSeasons)
	if err != nil {
		return nil, err
	}
	seasons := []models.Season{}
	// header row at index 0
	for i := 1; i < len(values); i++ {
		row := values[i]
		s := models.Season{
			SeasonID:       get(row, 0),
			ChampionshipID: get(row, 1),
			Name:           get(row, 2),
		}
		if s.SeasonID == "" || (championshipID != "" && s.ChampionshipID != championshipID) {
			continue
		}
		seasons = append(seasons, s)
	}
	return seasons, nil
}

func (c *Client) ListChampionships(ctx context.Context) ([]string, error) {
	seasons, err := c.ListSeasons(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, s := range seasons {
		if s.ChampionshipID == "" || seen[s.ChampionshipID] {
			continue
		}
		seen[s.ChampionshipID] = true
		out = append(out, s.ChampionshipID)
	}
	sort.Strings(out)
	return out, nil
}

// ---------- Stages ----------
// stage_id | title | date | time | place | address | reg_open | price | season_id

func (c *Client) ListStages(ctx context.Context, championshipID string) ([]models.Stage, error) {
	seasons, err := c.ListSeasons(ctx, championshipID)
	if err != nil {
		return nil, err
	}
	inChampionship := map[string]bool{}
	for _, s := range seasons {
		inChampionship[s.SeasonID] = true
	}

	values, err := c.readAll(ctx, SheetStages)
	if err != nil {
		return nil, err
	}
	stages := []models.Stage{}
	for i := 1; i < len(values); i++ {
		st := parseStageRow(values[i])
		if st.StageID == "" || !inChampionship[st.SeasonID] {
			continue
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func parseStageRow(row []interface{}) models.Stage {
	return models.Stage{
		StageID:  get(row, 0),
		Title:    get(row, 1),
		Date:     parseDate(get(row, 2)),
		SeasonID: get(row, 8),
	}
}

// ---------- Registrations ----------
// registration_id | championship_id | season_id | user_id | pilot_name | pilot_email |
// amount | inscription_type | payment_status | stage_ids | category_ids | created_at

func (c *Client) ListRegistrations(ctx context.Context, scope models.Scope) ([]models.Registration, error) {
	values, err := c.readAll(ctx, SheetRegistrations)
	if err != nil {
		return nil, err
	}
	regs := []models.Registration{}
	for i := 1; i < len(values); i++ {
		r := c.parseRegistrationRow(values[i])
		if r.ID == "" {
			continue
		}
		if scope.ChampionshipID != "" && r.ChampionshipID != scope.ChampionshipID {
			continue
		}
		if scope.UserID != "" && r.UserID != scope.UserID {
			continue
		}
		regs = append(regs, r)
	}

	payments, err := c.paymentsByRegistration(ctx)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		// loaded, even when empty
		regs[i].Payments = append([]models.Payment{}, payments[regs[i].ID]...)
	}
	return regs, nil
}

func (c *Client) parseRegistrationRow(row []interface{}) models.Registration {
	r := models.Registration{
		ID:              get(row, 0),
		ChampionshipID:  get(row, 1),
		SeasonID:        get(row, 2),
		UserID:          get(row, 3),
		PilotName:       get(row, 4),
		PilotEmail:      get(row, 5),
		Amount:          c.money(SheetRegistrations, get(row, 0), get(row, 6)),
		InscriptionType: models.InscriptionType(strings.ToLower(get(row, 7))),
		PaymentStatus:   strings.ToLower(get(row, 8)),
		CategoryIDs:     splitList(get(row, 10)),
	}
	for _, id := range splitList(get(row, 9)) {
		r.Stages = append(r.Stages, models.StageRef{StageID: id})
	}
	return r
}

// ---------- Payments ----------
// payment_id | registration_id | status | value | due_date | installment_count

func (c *Client) paymentsByRegistration(ctx context.Context) (map[string][]models.Payment, error) {
	values, err := c.readAll(ctx, SheetPayments)
	if err != nil {
		return nil, err
	}
	out := map[string][]models.Payment{}
	for i := 1; i < len(values); i++ {
		p := c.parsePaymentRow(values[i])
		if p.PaymentID == "" || p.RegistrationID == "" {
			continue
		}
		out[p.RegistrationID] = append(out[p.RegistrationID], p)
	}
	return out, nil
}

func (c *Client) GetPaymentData(ctx context.Context, registrationID string) ([]models.Payment, error) {
	all, err := c.paymentsByRegistration(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.Payment{}, all[registrationID]...), nil
}

func (c *Client) parsePaymentRow(row []interface{}) models.Payment {
	n, _ := strconv.Atoi(get(row, 5))
	return models.Payment{
		PaymentID:        get(row, 0),
		RegistrationID:   get(row, 1),
		Status:           strings.ToUpper(get(row, 2)),
		Value:            c.money(SheetPayments, get(row, 0), get(row, 3)),
		DueDate:          parseDate(get(row, 4)),
		InstallmentCount: n,
	}
}

// paymentRow returns the 1-indexed sheet row of a payment and the
// registration it belongs to.
func (c *Client) paymentRow(ctx context.Context, paymentID string) (int, string, error) {
	values, err := c.readAll(ctx, SheetPayments)
	if err != nil {
		return 0, "", err
	}
	for i := 1; i < len(values); i++ {
		if get(values[i], 0) == paymentID {
			return i + 1, get(values[i], 1), nil
		}
	}
	return 0, "", fmt.Errorf("payment %s: %w", paymentID, store.ErrNotFound)
}

func (c *Client) UpdatePaymentDueDate(ctx context.Context, paymentID string, due time.Time) error {
	rowNum, _, err := c.paymentRow(ctx, paymentID)
	if err != nil {
		return err
	}
	return c.updateCell(ctx, SheetPayments, fmt.Sprintf("E%d", rowNum), due.Format(dateLayout)) // due_date
}

func (c *Client) UpdatePaymentStatus(ctx context.Context, registrationID, paymentID, status string) error {
	rowNum, owner, err := c.paymentRow(ctx, paymentID)
	if err != nil {
		return err
	}
	if owner != registrationID {
		return fmt.Errorf("payment %s of registration %s: %w", paymentID, registrationID, store.ErrNotFound)
	}
	return c.updateCell(ctx, SheetPayments, fmt.Sprintf("C%d", rowNum), strings.ToUpper(status)) // status
}

// ---------- helpers ----------

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[idx]))
}

// money parses an amount cell, logging cells that read as 0 only because
// they could not be parsed.
func (c *Client) money(sheet, rowID, cell string) float64 {
	v, err := parseMoney(cell)
	if err != nil {
		c.log.Warn("unparseable amount", "sheet", sheet, "row", rowID, "value", cell, "err", err)
	}
	return v
}

// parseMoney reads amounts like "1500", "1 500,50", "1.500,50", "1,500.50"
// and "R$ 150". When both separators appear the last one is the decimal
// mark; a single kind is a decimal mark only when it appears once.
func parseMoney(s string) (float64, error) {
	raw := s
	s = strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '-'
	})
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		if strings.TrimSpace(raw) == "" {
			return 0, nil
		}
		return 0, fmt.Errorf("no digits in %q", raw)
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		thousands, decimal := ",", "."
		if comma > dot {
			thousands, decimal = ".", ","
		}
		s = strings.ReplaceAll(s, thousands, "")
		s = strings.Replace(s, decimal, ".", 1)
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case dot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}

func parseDate(s string) time.Time {
	for _, layout := range []string{dateLayout, "02.01.2006", time.RFC3339} {
		if d, err := time.Parse(layout, s); err == nil {
			return d
		}
	}
	return time.Time{}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
