package inventory

import (
	"math"
	"time"
)

// DaysUntil returns the whole number of calendar days between the reference
// time and the target date, both resolved in target's location. The result
// is negative for dates already in the past. Time-of-day components of ref
// do not influence the result: an item expiring tomorrow reports 1 whether
// it is evaluated at 00:01 or 23:59.
func DaysUntil(ref, target time.Time) int {
	loc := target.Location()
	r := ref.In(loc)
	refDay := time.Date(r.Year(), r.Month(), r.Day(), 0, 0, 0, 0, loc)
	targetDay := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, loc)
	// A calendar day spanning a DST transition is 23 or 25 hours long, so
	// the elapsed duration can be off by up to an hour per span. Rounding
	// recovers the exact day count.
	return int(math.Round(targetDay.Sub(refDay).Hours() / 24))
}

// IsNearExpiry reports whether an item with the given days remaining falls
// inside the notification window. Already-expired items (zero or negative
// days) are still flagged; there is no upper bound beyond the threshold.
func IsNearExpiry(daysRemaining, threshold int) bool {
	return daysRemaining <= threshold
}

// NearExpiry filters the item set down to items that qualify for
// notification at ref: not soft-deleted, expiry parseable, and within
// threshold days. Malformed or deleted items are skipped silently.
func NearExpiry(items []Item, ref time.Time, threshold int, loc *time.Location) []Item {
	var out []Item
	for _, it := range items {
		if it.Deleted {
			continue
		}
		exp, ok := it.ExpiryDate(loc)
		if !ok {
			continue
		}
		if IsNearExpiry(DaysUntil(ref, exp), threshold) {
			out = append(out, it)
		}
	}
	return out
}
