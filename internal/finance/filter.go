package finance

import (
	"strings"

	"karting-finance/internal/models"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// FilterPilots keeps registrations whose badge equals status (unless status
// is "all" or empty) and whose pilot name or email contains search, ignoring
// case. Input order is preserved.
func FilterPilots(regs []models.Registration, status, search string) []models.Registration {
	status = strings.ToLower(strings.TrimSpace(status))
	needle := strings.ToLower(strings.TrimSpace(search))

	out := make([]models.Registration, 0, len(regs))
	for _, r := range regs {
		if status != "" && status != StatusAll && string(ClassifyRegistration(r)) != status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.PilotName), needle) &&
			!strings.Contains(strings.ToLower(r.PilotEmail), needle) {
			continue
		}
		out = append(out, r)
	}
	return out
}
