// Package streak computes runs of consecutive calendar days.
package streak

import "time"

// Longest returns the length of the longest run in dates where each entry
// falls on the calendar day right after the previous one. Dates must be
// sorted ascending; days are taken in UTC.
//
// Entries are not deduplicated: two on the same day end the current run.
func Longest(dates []time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	longest, current := 1, 1
	for i := 1; i < len(dates); i++ {
		if daysBetween(dates[i-1], dates[i]) == 1 {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return longest
}

// daysBetween counts calendar-day boundaries from a to b in UTC.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
