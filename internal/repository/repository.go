package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"

	"karting-finance/internal/models"
	"karting-finance/internal/store"
)

type PostgresRepository struct {
	db *sql.DB
}

var _ store.Store = (*PostgresRepository)(nil)

func NewPostgresRepository(ctx context.Context, databaseURI string) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	r := &PostgresRepository{db: db}
	if err := r.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *PostgresRepository) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seasons (
			id VARCHAR(64) PRIMARY KEY,
			championship_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS stages (
			id VARCHAR(64) PRIMARY KEY,
			season_id VARCHAR(64) NOT NULL REFERENCES seasons(id),
			title VARCHAR(255) NOT NULL DEFAULT '',
			stage_date DATE
		)`,
		`CREATE TABLE IF NOT EXISTS registrations (
			id VARCHAR(64) PRIMARY KEY,
			championship_id VARCHAR(64) NOT NULL,
			season_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL DEFAULT '',
			pilot_name VARCHAR(255) NOT NULL DEFAULT '',
			pilot_email VARCHAR(255) NOT NULL DEFAULT '',
			amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
			inscription_type VARCHAR(16) NOT NULL DEFAULT 'by_season',
			payment_status VARCHAR(32) NOT NULL DEFAULT '',
			category_ids TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS registration_stages (
			registration_id VARCHAR(64) NOT NULL REFERENCES registrations(id),
			stage_id VARCHAR(64) NOT NULL,
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(64) PRIMARY KEY,
			registration_id VARCHAR(64) NOT NULL REFERENCES registrations(id),
			status VARCHAR(64) NOT NULL,
			value NUMERIC(12, 2) NOT NULL DEFAULT 0,
			due_date DATE,
			installment_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS payments_registration_idx ON payments (registration_id)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepository) ListRegistrations(ctx context.Context, scope models.Scope) ([]models.Registration, error) {
	var (
		where []string
		args  []interface{}
	)
	if scope.ChampionshipID != "" {
		args = append(args, scope.ChampionshipID)
		where = append(where, fmt.Sprintf("championship_id = $%d", len(args)))
	}
	if scope.UserID != "" {
		args = append(args, scope.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	query := `SELECT id, championship_id, season_id, user_id, pilot_name, pilot_email,
	                 amount, inscription_type, payment_status, category_ids
	          FROM registrations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY pilot_name, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []models.Registration
	index := map[string]int{}
	for rows.Next() {
		var (
			reg        models.Registration
			inscType   string
			categories string
		)
		if err := rows.Scan(
			&reg.ID,
			&reg.ChampionshipID,
			&reg.SeasonID,
			&reg.UserID,
			&reg.PilotName,
			&reg.PilotEmail,
			&reg.Amount,
			&inscType,
			&reg.PaymentStatus,
			&categories,
		); err != nil {
			return nil, err
		}
		reg.InscriptionType = models.InscriptionType(inscType)
		reg.CategoryIDs = splitList(categories)
		reg.Payments = []models.Payment{}
		index[reg.ID] = len(regs)
		regs = append(regs, reg)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return regs, nil
	}

	ids := make([]string, 0, len(regs))
	for _, reg := range regs {
		ids = append(ids, reg.ID)
	}
	if err := r.attachStages(ctx, ids, regs, index); err != nil {
		return nil, err
	}
	if err := r.attachPayments(ctx, ids, regs, index); err != nil {
		return nil, err
	}
	return regs, nil
}

func (r *PostgresRepository) attachStages(ctx context.Context, ids []string, regs []models.Registration, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT registration_id, stage_id FROM registration_stages
		 WHERE registration_id = ANY($1) ORDER BY registration_id, position`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var regID, stageID string
		if err := rows.Scan(&regID, &stageID); err != nil {
			return err
		}
		if i, ok := index[regID]; ok {
			regs[i].Stages = append(regs[i].Stages, models.StageRef{StageID: stageID})
		}
	}
	return rows.Err()
}

func (r *PostgresRepository) attachPayments(ctx context.Context, ids []string, regs []models.Registration, index map[string]int) error {
	rows, err := r.db.QueryContext(ctx, paymentSelect+` WHERE registration_id = ANY($1) ORDER BY due_date NULLS LAST, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return err
		}
		if i, ok := index[p.RegistrationID]; ok {
			regs[i].Payments = append(regs[i].Payments, p)
		}
	}
	return rows.Err()
}

const paymentSelect = `SELECT id, registration_id, status, value, due_date, installment_count FROM payments`

func scanPayment(rows *sql.Rows) (models.Payment, error) {
	var (
		p   models.Payment
		due sql.NullTime
	)
	if err := rows.Scan(&p.PaymentID, &p.RegistrationID, &p.Status, &p.Value, &due, &p.InstallmentCount); err != nil {
		return p, err
	}
	if due.Valid {
		p.DueDate = due.Time
	}
	return p, nil
}

func (r *PostgresRepository) GetPaymentData(ctx context.Context, registrationID string) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, paymentSelect+` WHERE registration_id = $1 ORDER BY due_date NULLS LAST, id`, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PostgresRepository) UpdatePaymentDueDate(ctx context.Context, paymentID string, due time.Time) error {
	res, err := r.db.ExecContext(ctx, "UPDATE payments SET due_date = $1 WHERE id = $2", due, paymentID)
	if err != nil {
		return err
	}
	return expectOneRow(res, "payment "+paymentID)
}

func (r *PostgresRepository) UpdatePaymentStatus(ctx context.Context, registrationID, paymentID, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE payments SET status = $1 WHERE id = $2 AND registration_id = $3",
		strings.ToUpper(status), paymentID, registrationID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, "payment "+paymentID)
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) ListChampionships(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT championship_id FROM seasons ORDER BY championship_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) ListSeasons(ctx context.Context, championshipID string) ([]models.Season, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, championship_id, name FROM seasons WHERE championship_id = $1 ORDER BY name DESC",
		championshipID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seasons []models.Season
	for rows.Next() {
		var s models.Season
		if err := rows.Scan(&s.SeasonID, &s.ChampionshipID, &s.Name); err != nil {
			return nil, err
		}
		seasons = append(seasons, s)
	}
	return seasons, rows.Err()
}

func (r *PostgresRepository) ListStages(ctx context.Context, championshipID string) ([]models.Stage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT st.id, st.season_id, st.title, st.stage_date
		 FROM stages st JOIN seasons se ON se.id = st.season_id
		 WHERE se.championship_id = $1
		 ORDER BY st.stage_date DESC NULLS LAST, st.id`,
		championshipID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		var (
			s    models.Stage
			date sql.NullTime
		)
		if err := rows.Scan(&s.StageID, &s.SeasonID, &s.Title, &date); err != nil {
			return nil, err
		}
		if date.Valid {
			s.Date = date.Time
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
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
