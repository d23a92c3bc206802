package finance

import (
	"sort"
	"time"

	"karting-finance/internal/models"
)

// GroupBySeason buckets season-long registrations by season. Stage-based
// registrations are left to GroupByStage so nothing is counted twice.
func GroupBySeason(regs []models.Registration) map[string][]models.Registration {
	out := map[string][]models.Registration{}
	for _, r := range regs {
		if r.InscriptionType == models.InscriptionByStage {
			continue
		}
		out[r.SeasonID] = append(out[r.SeasonID], r)
	}
	return out
}

// GroupByStage buckets stage-based registrations by season and then by stage.
// A registration is placed under every stage it is linked to.
func GroupByStage(regs []models.Registration) map[string]map[string][]models.Registration {
	out := map[string]map[string][]models.Registration{}
	for _, r := range regs {
		if r.InscriptionType != models.InscriptionByStage {
			continue
		}
		for _, st := range r.Stages {
			byStage := out[r.SeasonID]
			if byStage == nil {
				byStage = map[string][]models.Registration{}
				out[r.SeasonID] = byStage
			}
			byStage[st.StageID] = append(byStage[st.StageID], r)
		}
	}
	return out
}

type StageSummary struct {
	StageID  string          `json:"stage_id"`
	SeasonID string          `json:"season_id"`
	Title    string          `json:"title"`
	Date     time.Time       `json:"date"`
	Result   AggregateResult `json:"result"`
}

type SeasonSummary struct {
	SeasonID string          `json:"season_id"`
	Name     string          `json:"name"`
	Result   AggregateResult `json:"result"`
	Stages   []StageSummary  `json:"stages"`
}

// StageSummaries aggregates one season's stage groups with proration,
// most recent stage first. Stages missing from the catalog, or without a
// date, sort last by id.
func StageSummaries(seasonID string, byStage map[string][]models.Registration, stages []models.Stage) []StageSummary {
	catalog := make(map[string]models.Stage, len(stages))
	for _, s := range stages {
		catalog[s.StageID] = s
	}

	out := make([]StageSummary, 0, len(byStage))
	for stageID, regs := range byStage {
		if len(regs) == 0 {
			continue
		}
		st := catalog[stageID]
		out = append(out, StageSummary{
			StageID:  stageID,
			SeasonID: seasonID,
			Title:    st.Title,
			Date:     st.Date,
			Result:   Aggregate(regs, ProrationShare),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date.IsZero() != b.Date.IsZero() {
			return !a.Date.IsZero()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.StageID < b.StageID
	})
	return out
}

// SeasonSummaries builds the dashboard view: one card per season that has
// registrations, in catalog order, followed by seasons unknown to the catalog
// sorted by id.
func SeasonSummaries(regs []models.Registration, seasons []models.Season, stages []models.Stage) []SeasonSummary {
	bySeason := GroupBySeason(regs)
	byStage := GroupByStage(regs)

	names := map[string]string{}
	order := []string{}
	for _, s := range seasons {
		if _, dup := names[s.SeasonID]; dup {
			continue
		}
		names[s.SeasonID] = s.Name
		order = append(order, s.SeasonID)
	}
	var extra []string
	for id := range bySeason {
		if _, ok := names[id]; !ok {
			extra = append(extra, id)
		}
	}
	for id := range byStage {
		if _, ok := names[id]; !ok && bySeason[id] == nil {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	var out []SeasonSummary
	for _, id := range order {
		seasonRegs := bySeason[id]
		stageGroups := StageSummaries(id, byStage[id], stages)
		if len(seasonRegs) == 0 && len(stageGroups) == 0 {
			continue
		}
		out = append(out, SeasonSummary{
			SeasonID: id,
			Name:     names[id],
			Result:   Aggregate(seasonRegs, ProrationShare),
			Stages:   stageGroups,
		})
	}
	return out
}
