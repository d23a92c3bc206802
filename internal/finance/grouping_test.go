package finance

import (
	"math"
	"testing"
	"time"

	"karting-finance/internal/models"
)

func date(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func TestEndToEnd_SeasonAndStageRollUp(t *testing.T) {
	r1 := models.Registration{
		ID:              "r1",
		SeasonID:        "s1",
		Amount:          500,
		InscriptionType: models.InscriptionBySeason,
		Payments:        []models.Payment{pay("RECEIVED", 500)},
	}
	r2 := stageReg("r2", 300, []string{"st1", "st2"}, pay("OVERDUE", 150), pay("PENDING", 150))
	regs := []models.Registration{r1, r2}

	season := Aggregate(GroupBySeason(regs)["s1"], ProrationShare)
	if season.PaidAmount != 500 || season.TotalRegistrations != 1 {
		t.Errorf("season roll-up = %+v", season)
	}

	stages := []models.Stage{
		{StageID: "st1", SeasonID: "s1", Title: "Round 1", Date: date("2026-03-01")},
		{StageID: "st2", SeasonID: "s1", Title: "Round 2", Date: date("2026-04-01")},
	}
	summaries := StageSummaries("s1", GroupByStage(regs)["s1"], stages)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 stage groups, got %d", len(summaries))
	}
	for _, s := range summaries {
		r := s.Result
		if !approx(r.OverdueAmount, 75) || !approx(r.PendingAmount, 75) || !approx(r.TotalAmount, 150) {
			t.Errorf("stage %s = %+v", s.StageID, r)
		}
		if r.OverdueCount != 1 || r.TotalRegistrations != 1 {
			t.Errorf("stage %s counts = %+v", s.StageID, r)
		}
	}
	if summaries[0].StageID != "st2" {
		t.Errorf("expected most recent stage first, got %s", summaries[0].StageID)
	}
}

func TestGroupByStage_ProrationSumsToAmount(t *testing.T) {
	reg := stageReg("r", 1000, []string{"a", "b", "c"}, pay("RECEIVED", 1000))
	groups := GroupByStage([]models.Registration{reg})["s1"]
	if len(groups) != 3 {
		t.Fatalf("expected fan-out to 3 stages, got %d", len(groups))
	}
	total, paid := 0.0, 0.0
	for _, regs := range groups {
		res := Aggregate(regs, ProrationShare)
		total += res.TotalAmount
		paid += res.PaidAmount
	}
	if math.Abs(total-1000) > 1e-6 || math.Abs(paid-1000) > 1e-6 {
		t.Errorf("prorated sums = %v total, %v paid; want 1000", total, paid)
	}
}

func TestGroupBySeason_ExcludesStageRegistrations(t *testing.T) {
	regs := []models.Registration{
		{ID: "a", SeasonID: "s1", InscriptionType: models.InscriptionBySeason},
		{ID: "b", SeasonID: "s1", InscriptionType: models.InscriptionByStage},
		{ID: "c", SeasonID: "s2"},
	}
	got := GroupBySeason(regs)
	if len(got["s1"]) != 1 || got["s1"][0].ID != "a" {
		t.Errorf("s1 = %+v", got["s1"])
	}
	if len(got["s2"]) != 1 {
		t.Errorf("registration without inscription type should count as season-long")
	}
}

func TestStageSummaries_Ordering(t *testing.T) {
	byStage := map[string][]models.Registration{
		"old":     {stageReg("1", 10, []string{"old"})},
		"new":     {stageReg("2", 10, []string{"new"})},
		"unknown": {stageReg("3", 10, []string{"unknown"})},
		"empty":   nil,
	}
	stages := []models.Stage{
		{StageID: "old", Date: date("2025-05-01")},
		{StageID: "new", Date: date("2026-05-01")},
	}
	got := StageSummaries("s1", byStage, stages)
	var ids []string
	for _, s := range got {
		ids = append(ids, s.StageID)
	}
	want := []string{"new", "old", "unknown"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestSeasonSummaries(t *testing.T) {
	regs := []models.Registration{
		{ID: "a", SeasonID: "s2", Amount: 100, InscriptionType: models.InscriptionBySeason,
			Payments: []models.Payment{pay("RECEIVED", 100)}},
		stageReg("b", 50, []string{"st1"}, pay("PENDING", 50)),
		{ID: "c", SeasonID: "orphan", Amount: 10, PaymentStatus: models.PaymentStatusExempt},
	}
	seasons := []models.Season{
		{SeasonID: "s1", Name: "2026"},
		{SeasonID: "s2", Name: "2025"},
		{SeasonID: "s3", Name: "no registrations"},
	}
	got := SeasonSummaries(regs, seasons, nil)
	if len(got) != 3 {
		t.Fatalf("expected 3 season cards, got %d: %+v", len(got), got)
	}
	if got[0].SeasonID != "s1" || got[1].SeasonID != "s2" || got[2].SeasonID != "orphan" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].SeasonID, got[1].SeasonID, got[2].SeasonID)
	}
	if got[0].Result.TotalRegistrations != 0 || len(got[0].Stages) != 1 {
		t.Errorf("s1 should only carry the stage group: %+v", got[0])
	}
	if got[1].Name != "2025" || got[1].Result.PaidAmount != 100 {
		t.Errorf("s2 = %+v", got[1])
	}
	if got[2].Result.PaidAmount != 10 {
		t.Errorf("orphan season = %+v", got[2])
	}
}
