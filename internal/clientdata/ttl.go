package clientdata

import "time"

// TTL constants for cached market data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// TTLHistoricalSeries applies to ranges that end before today; closed
	// bars do not change, so these live long.
	TTLHistoricalSeries = 7 * 24 * time.Hour

	// TTLRecentSeries applies to ranges that include the current session.
	TTLRecentSeries = 6 * time.Hour
)

// TTLFor picks the TTL for a series ending on end. recent overrides
// TTLRecentSeries when positive.
func TTLFor(end, now time.Time, recent time.Duration) time.Duration {
	if recent <= 0 {
		recent = TTLRecentSeries
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if end.Before(today.AddDate(0, 0, -1)) {
		return TTLHistoricalSeries
	}
	return recent
}
