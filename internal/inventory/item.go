// Package inventory holds the domain model for per-user perishable items
// and the expiry evaluation rules applied before notification dispatch.
package inventory

import (
	"encoding/json"
	"time"
)

// ExpiryLayout is the calendar-date form items carry, e.g. "2026-09-04".
const ExpiryLayout = "2006-01-02"

// DefaultThresholdDays is the near-expiry window applied when no explicit
// threshold is configured.
const DefaultThresholdDays = 3

// Item is a single tracked perishable.
type Item struct {
	Name    string `json:"name"`
	Expiry  string `json:"expiry"`
	Deleted bool   `json:"deleted"`
}

// User is one user record: an optional push subscription plus the current
// item set. The subscription descriptor is opaque to this package and is
// handed verbatim to the push transport.
type User struct {
	Subscription json.RawMessage `json:"subscription,omitempty"`
	Items        []Item          `json:"items"`
}

// HasSubscription reports whether the user completed push registration.
// JSON null counts as absent.
func (u User) HasSubscription() bool {
	return len(u.Subscription) > 0 && string(u.Subscription) != "null"
}

// ExpiryDate parses the item's expiry string. The second return value is
// false for malformed dates; such items never qualify for evaluation.
func (i Item) ExpiryDate(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(ExpiryLayout, i.Expiry, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
