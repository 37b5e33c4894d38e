package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string, loc *time.Location) time.Time {
	t.Helper()
	d, err := time.ParseInLocation(ExpiryLayout, s, loc)
	require.NoError(t, err)
	return d
}

func TestDaysUntil(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name   string
		ref    time.Time
		target string
		want   int
	}{
		{"same day", time.Date(2026, 9, 1, 12, 0, 0, 0, loc), "2026-09-01", 0},
		{"tomorrow from morning", time.Date(2026, 9, 1, 0, 1, 0, 0, loc), "2026-09-02", 1},
		{"tomorrow from late evening", time.Date(2026, 9, 1, 23, 59, 0, 0, loc), "2026-09-02", 1},
		{"three days out", time.Date(2026, 9, 1, 8, 30, 0, 0, loc), "2026-09-04", 3},
		{"already expired", time.Date(2026, 9, 1, 9, 0, 0, 0, loc), "2026-08-30", -2},
		{"far future", time.Date(2026, 9, 1, 9, 0, 0, 0, loc), "2029-05-28", 1000},
		{"across month boundary", time.Date(2026, 8, 31, 22, 0, 0, 0, loc), "2026-09-01", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.ref, date(t, tt.target, loc)))
		})
	}
}

func TestDaysUntil_TimeOfDayIndependent(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	target := date(t, "2026-09-05", loc)
	for hour := 0; hour < 24; hour++ {
		ref := time.Date(2026, 9, 2, hour, 17, 0, 0, loc)
		assert.Equal(t, 3, DaysUntil(ref, target), "hour=%d", hour)
	}
}

func TestDaysUntil_AcrossDSTTransitions(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name   string
		ref    time.Time
		target string
		want   int
	}{
		// 2026-03-08 is spring-forward in New York: that calendar day is
		// 23 hours long, so the elapsed duration undercounts.
		{"span spring forward", time.Date(2026, 3, 7, 9, 0, 0, 0, ny), "2026-03-11", 4},
		{"into spring forward day", time.Date(2026, 3, 7, 9, 0, 0, 0, ny), "2026-03-08", 1},
		// 2026-11-01 is fall-back: a 25-hour day overcounts instead.
		{"span fall back", time.Date(2026, 10, 31, 9, 0, 0, 0, ny), "2026-11-04", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DaysUntil(tt.ref, date(t, tt.target, ny))
			assert.Equal(t, tt.want, got)
			if tt.want > DefaultThresholdDays {
				assert.False(t, IsNearExpiry(got, DefaultThresholdDays),
					"items strictly more than %d days out must not qualify", DefaultThresholdDays)
			}
		})
	}
}

func TestDaysUntil_RefInOtherLocation(t *testing.T) {
	// The target's calendar decides what "today" means; a reference time
	// expressed in another zone must not shift the answer.
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	target := date(t, "2026-09-02", kolkata)
	// 2026-09-01 20:00 UTC is already 2026-09-02 01:30 in Kolkata.
	ref := time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysUntil(ref, target))
}

func TestIsNearExpiry(t *testing.T) {
	tests := []struct {
		days int
		want bool
	}{
		{-10, true},
		{-1, true},
		{0, true},
		{1, true},
		{3, true},
		{4, false},
		{30, false},
		{1000, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNearExpiry(tt.days, DefaultThresholdDays), "days=%d", tt.days)
	}
}

func TestNearExpiry_Filtering(t *testing.T) {
	loc := time.UTC
	ref := time.Date(2026, 9, 1, 10, 0, 0, 0, loc)

	items := []Item{
		{Name: "Milk", Expiry: "2026-09-02"},
		{Name: "Rice", Expiry: "2026-10-01"},
		{Name: "Yogurt", Expiry: "2026-09-03", Deleted: true},
		{Name: "Mystery", Expiry: "not-a-date"},
		{Name: "Blank", Expiry: ""},
		{Name: "Cheese", Expiry: "2026-08-28"},
	}

	got := NearExpiry(items, ref, DefaultThresholdDays, loc)
	require.Len(t, got, 2)
	assert.Equal(t, "Milk", got[0].Name)
	assert.Equal(t, "Cheese", got[1].Name)
}

func TestNearExpiry_EmptySet(t *testing.T) {
	ref := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	assert.Empty(t, NearExpiry(nil, ref, DefaultThresholdDays, time.UTC))
	assert.Empty(t, NearExpiry([]Item{}, ref, DefaultThresholdDays, time.UTC))
}

func TestUser_HasSubscription(t *testing.T) {
	assert.False(t, User{}.HasSubscription())
	assert.False(t, User{Subscription: []byte("null")}.HasSubscription())
	assert.True(t, User{Subscription: []byte(`{"endpoint":"https://push.example.com/x"}`)}.HasSubscription())
}
