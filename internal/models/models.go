package models

import "time"

type InscriptionType string

const (
	InscriptionBySeason InscriptionType = "by_season"
	InscriptionByStage  InscriptionType = "by_stage"
)

// Administrative payment flags kept on the registration itself.
const (
	PaymentStatusExempt        = "exempt"
	PaymentStatusDirectPayment = "direct_payment"
	PaymentStatusPaid          = "paid"
	PaymentStatusPending       = "pending"
	PaymentStatusOverdue       = "overdue"
)

type Season struct {
	SeasonID       string
	ChampionshipID string
	Name           string
}

type Stage struct {
	StageID  string
	SeasonID string
	Title    string
	Date     time.Time // zero when the sheet/db has no parsable date
}

type StageRef struct {
	StageID string
}

type Registration struct {
	ID              string
	ChampionshipID  string
	SeasonID        string
	UserID          string
	PilotName       string
	PilotEmail      string
	CategoryIDs     []string
	Stages          []StageRef
	Amount          float64
	InscriptionType InscriptionType
	PaymentStatus   string // exempt/direct_payment/paid/pending/overdue
	// Payments is nil when not loaded yet, empty when loaded and there are none.
	Payments []Payment
}

type Payment struct {
	PaymentID        string
	RegistrationID   string
	Status           string // raw gateway status, e.g. RECEIVED, OVERDUE
	Value            float64
	DueDate          time.Time
	InstallmentCount int // 0 when the gateway gave no hint
}

// Scope selects which registrations to list: by championship or by user.
type Scope struct {
	ChampionshipID string
	UserID         string
}

// PaymentEvent is a status change pushed by the gateway for one payment.
type PaymentEvent struct {
	PaymentID      string `json:"payment_id"`
	RegistrationID string `json:"registration_id"`
	Status         string `json:"status"` // raw gateway status
}
