// Package daykey formats the DD-MM-YYYY partition key used by daily and history aggregates.
// Days roll over at 00:00 UTC regardless of the caller's location.
package daykey

import "time"

// Layout is the Go reference layout for DD-MM-YYYY.
const Layout = "02-01-2006"

// For returns the day key of t in UTC.
func For(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Last returns the keys of n consecutive UTC days ending on the day of now, most recent first.
func Last(now time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	day := Midnight(now)
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, day.AddDate(0, 0, -i).Format(Layout))
	}
	return keys
}

// Midnight returns 00:00 UTC of the day containing t.
func Midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Parse converts a day key back to its UTC midnight.
func Parse(key string) (time.Time, error) {
	return time.ParseInLocation(Layout, key, time.UTC)
}
