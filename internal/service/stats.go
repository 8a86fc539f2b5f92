package service

import (
	"sort"
	"time"

	"github.com/Tcdrol/url-shortener/internal/models"
)

// aggregateVisits folds analytics records into the stats summary. Window
// counts include only visits strictly newer than now minus the window.
func aggregateVisits(u *models.URL, visits []models.Visit, now time.Time) *models.URLStats {
	stats := &models.URLStats{
		URL:         u,
		TotalClicks: u.Clicks,
	}

	dayCutoff := now.Add(-24 * time.Hour)
	weekCutoff := now.Add(-7 * 24 * time.Hour)

	referrers := make(map[string]int64)
	userAgents := make(map[string]int64)

	for _, v := range visits {
		if v.Referrer != "" {
			referrers[v.Referrer]++
		}
		userAgents[v.UserAgent]++

		if v.Timestamp.After(dayCutoff) {
			stats.LastDayClicks++
		}
		if v.Timestamp.After(weekCutoff) {
			stats.LastWeekClicks++
		}
	}

	stats.Referrers = sortedCounts(referrers)
	stats.UserAgents = sortedCounts(userAgents)

	return stats
}

func sortedCounts(counts map[string]int64) []models.FieldCount {
	out := make([]models.FieldCount, 0, len(counts))
	for value, count := range counts {
		out = append(out, models.FieldCount{Value: value, Count: count})
	}

	// Descending by count; ties broken by value to keep output stable.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})

	return out
}
