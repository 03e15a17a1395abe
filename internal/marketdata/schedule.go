package marketdata

import (
	"sort"
	"time"
)

// ExpirationSchedule returns the canonical listing calendar from now: the
// next weekly Fridays plus third-Friday monthlies, deduplicated and sorted.
// Surface builders and the synthetic provider share this schedule.
func ExpirationSchedule(now time.Time, weeklies, monthlies int) []time.Time {
	day := now.Truncate(24 * time.Hour)

	seen := map[string]time.Time{}

	d := nextFriday(day)
	for i := 0; i < weeklies; i++ {
		seen[d.Format("2006-01-02")] = d
		d = d.AddDate(0, 0, 7)
	}

	month := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < monthlies; i++ {
		tf := thirdFriday(month)
		if tf.After(day) {
			seen[tf.Format("2006-01-02")] = tf
		}
		month = month.AddDate(0, 1, 0)
	}

	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func nextFriday(t time.Time) time.Time {
	d := t
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	if d.Equal(t) {
		d = d.AddDate(0, 0, 7)
	}
	return d
}

func thirdFriday(monthStart time.Time) time.Time {
	d := monthStart
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 14)
}
