// Package bucket collapses raw activity samples into one representative sample per time bucket.
//
// Bucket boundaries follow the wall clock of each sample's own location (year, month, day,
// hour, minute), not epoch arithmetic. A sampler running in UTC+05:30 therefore buckets on its
// local minute grid while day keys elsewhere roll over at UTC midnight.
package bucket

import (
	"fmt"
	"sort"
	"time"

	"github.com/KushagraAgarwal525/racoon/internal/model"
)

// DefaultWidth is the bucket width used when callers pass a non-positive width.
const DefaultWidth = time.Minute

// Aggregate returns one entry per distinct bucket present in samples, ordered by bucket start.
//
// Within a bucket the sample with the strictly longer Duration wins; equal durations are
// resolved in favour of the later Timestamp. The result does not depend on input order.
func Aggregate(samples []model.ActivitySample, width time.Duration) []model.AggregatedBucket {
	if width <= 0 {
		width = DefaultWidth
	}

	chosen := make(map[string]model.AggregatedBucket, len(samples))
	for _, s := range samples {
		start := Start(s.Timestamp, width)
		key := Key(start)
		cur, ok := chosen[key]
		if !ok || wins(s, cur.Sample) {
			chosen[key] = model.AggregatedBucket{Key: key, Start: start, Sample: s}
		}
	}

	out := make([]model.AggregatedBucket, 0, len(chosen))
	for _, b := range chosen {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// wins reports whether candidate replaces current in the same bucket.
func wins(candidate, current model.ActivitySample) bool {
	if candidate.Duration != current.Duration {
		return candidate.Duration > current.Duration
	}
	return candidate.Timestamp.After(current.Timestamp)
}

// Start truncates t to width using t's wall-clock components in t's location.
func Start(t time.Time, width time.Duration) time.Time {
	if width <= 0 {
		width = DefaultWidth
	}
	// Re-express the wall clock as UTC so Truncate works on calendar components
	// instead of the absolute instant, then restore the original location.
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	tr := wall.Truncate(width)
	return time.Date(tr.Year(), tr.Month(), tr.Day(), tr.Hour(), tr.Minute(), 0, 0, t.Location())
}

// Key formats a bucket start as YYYY-MM-DD-HH-mm.
func Key(start time.Time) string {
	return fmt.Sprintf("%04d-%02d-%02d-%02d-%02d",
		start.Year(), int(start.Month()), start.Day(), start.Hour(), start.Minute())
}
