package finance

import "karting-finance/internal/models"

// ShareFunc returns the fraction of a registration's amount, and of each of
// its payments, attributed to the group being aggregated.
type ShareFunc func(models.Registration) float64

// ProrationShare splits a by_stage registration evenly over its stages.
// A stage registration with no stage links counts as one stage.
func ProrationShare(r models.Registration) float64 {
	if r.InscriptionType != models.InscriptionByStage {
		return 1
	}
	n := len(r.Stages)
	if n < 1 {
		n = 1
	}
	return 1 / float64(n)
}

// FullShare attributes the whole amount, used where no stage split applies.
func FullShare(models.Registration) float64 { return 1 }
