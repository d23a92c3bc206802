package finance

import (
	"testing"

	"karting-finance/internal/models"
)

func pilots() []models.Registration {
	return []models.Registration{
		{ID: "1", PilotName: "Ana Lima", PilotEmail: "ana@kart.io", Payments: []models.Payment{pay("OVERDUE", 1)}},
		{ID: "2", PilotName: "Bruno Reis", PilotEmail: "bruno@kart.io", Payments: []models.Payment{pay("RECEIVED", 1)}},
		{ID: "3", PilotName: "Carla Dias", PilotEmail: "LIMA.fan@kart.io", Payments: []models.Payment{pay("OVERDUE", 1), pay("RECEIVED", 1)}},
		{ID: "4", PilotName: "Diego", PilotEmail: "d@kart.io", PaymentStatus: models.PaymentStatusExempt},
	}
}

func ids(regs []models.Registration) string {
	s := ""
	for _, r := range regs {
		s += r.ID
	}
	return s
}

func TestFilterPilots(t *testing.T) {
	tests := []struct {
		name   string
		status string
		search string
		want   string
	}{
		{"all passes everything", "all", "", "1234"},
		{"empty status passes everything", "", "", "1234"},
		{"overdue only", "overdue", "", "13"},
		{"exempt", "exempt", "", "4"},
		{"search by name", "all", "bruno", "2"},
		{"search matches email case-insensitively", "all", "lima", "13"},
		{"status and search", "overdue", "CARLA", "3"},
		{"no match", "paid", "zzz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(FilterPilots(pilots(), tt.status, tt.search)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilterPilots_OverdueMatchesClassifier(t *testing.T) {
	regs := pilots()
	got := FilterPilots(regs, "overdue", "")
	want := 0
	for _, r := range regs {
		if ClassifyRegistration(r) == StatusOverdue {
			want++
		}
	}
	if len(got) != want {
		t.Fatalf("got %d, want %d", len(got), want)
	}
	for _, r := range got {
		if ClassifyRegistration(r) != StatusOverdue {
			t.Errorf("%s is not overdue", r.ID)
		}
	}
}
