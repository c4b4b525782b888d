package ticket

import "sort"

// SortQueue orders status records for GET /queue: completed tickets first,
// by descending urgency score then ascending created_at; all other states
// after, by ascending created_at.
func SortQueue(statuses []Status) {
	sort.SliceStable(statuses, func(i, j int) bool {
		var a, b = &statuses[i], &statuses[j]
		var aDone, bDone = a.Status == StateCompleted, b.Status == StateCompleted

		if aDone != bDone {
			return aDone
		}
		if aDone && bDone {
			var as, bs = scoreOf(a), scoreOf(b)
			if as != bs {
				return as > bs
			}
		}
		return a.CreatedAt < b.CreatedAt
	})
}

func scoreOf(s *Status) float64 {
	if s.UrgencyScore == nil {
		return 0
	}
	return *s.UrgencyScore
}
