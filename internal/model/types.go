package model

import "time"

// Category is the productivity class assigned to an aggregated bucket.
type Category string

const (
	CategoryProductive   Category = "productive"
	CategoryUnproductive Category = "unproductive"
	CategoryNeutral      Category = "neutral"
)

// ActivitySample is one raw observation of the active window.
type ActivitySample struct {
	AppName     string        `json:"appName"`
	WindowTitle string        `json:"windowTitle"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
}

// AggregatedBucket is the representative sample chosen for one time bucket.
type AggregatedBucket struct {
	Key    string         `json:"key"`   // YYYY-MM-DD-HH-mm of the bucket start (sampler wall clock)
	Start  time.Time      `json:"start"` // bucket start in the sample's location
	Sample ActivitySample `json:"sample"`
}

// ClassifiedBucket is an AggregatedBucket with its category.
type ClassifiedBucket struct {
	AggregatedBucket
	Category Category `json:"category"`
}

// ProductivityUpdate is the unit of work applied to the daily and history aggregates.
// TaskID is the only idempotency key.
type ProductivityUpdate struct {
	UserID          string         `json:"userId"`
	TaskID          string         `json:"taskId"`
	WindowStart     time.Time      `json:"windowStart,omitempty"`
	WindowEnd       time.Time      `json:"windowEnd,omitempty"`
	TotalTime       int            `json:"totalTime"`
	ProductiveTime  int            `json:"productiveTime"`
	Categories      map[string]int `json:"categories,omitempty"`
	ApplicationName string         `json:"applicationName,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
}

// UpdateResult reports whether an update mutated the aggregates.
type UpdateResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// AggregateKind selects the daily or history collection.
type AggregateKind string

const (
	KindDaily   AggregateKind = "daily"
	KindHistory AggregateKind = "history"
)

// DayAggregate is a per-user, per-day accumulator. Daily and history records share this shape.
// Version is the optimistic concurrency token; 0 means the record does not exist yet.
type DayAggregate struct {
	UserID         string         `json:"userId"`
	Date           string         `json:"date"`
	ProductiveTime int            `json:"productiveTime"`
	TotalTime      int            `json:"totalTime"`
	Categories     map[string]int `json:"categories"`
	LastUpdated    time.Time      `json:"lastUpdated"`
	Version        int64          `json:"-"`
}

// Clone returns a deep copy so callers never share category maps with the store.
func (a *DayAggregate) Clone() *DayAggregate {
	if a == nil {
		return nil
	}
	out := *a
	out.Categories = CopyCategories(a.Categories)
	return &out
}

// ProcessedTask records an accepted taskId together with a snapshot of the submitted values.
type ProcessedTask struct {
	TaskID          string         `json:"taskId"`
	UserID          string         `json:"userId"`
	ProcessedAt     time.Time      `json:"processedAt"`
	TotalTime       int            `json:"totalTime"`
	ProductiveTime  int            `json:"productiveTime"`
	Categories      map[string]int `json:"categories,omitempty"`
	ApplicationName string         `json:"applicationName,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty"`
}

// User is the display profile used to decorate leaderboard entries.
type User struct {
	UserID       string    `json:"userId"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email,omitempty"`
	PhotoURL     string    `json:"photoURL,omitempty"`
	CreationTime time.Time `json:"creationTime"`
}

// HistoryEntry is one day of a user's history; zero-filled days have a nil LastUpdated.
type HistoryEntry struct {
	Date           string         `json:"date"`
	ProductiveTime int            `json:"productiveTime"`
	TotalTime      int            `json:"totalTime"`
	Categories     map[string]int `json:"categories"`
	LastUpdated    *time.Time     `json:"lastUpdated"`
}

// LeaderboardEntry is one ranked user for the current day.
type LeaderboardEntry struct {
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	PhotoURL       string `json:"photoURL,omitempty"`
	ProductiveTime int    `json:"productiveTime"`
	TotalTime      int    `json:"totalTime"`
	Rank           int    `json:"rank"`
}

// Leaderboard is the ranked view plus the caller's own position when requested.
type Leaderboard struct {
	Date        string             `json:"date"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	UserRank    *LeaderboardEntry  `json:"userRank"`
}

// CopyCategories returns a copy of m; a nil map yields an empty map.
func CopyCategories(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeCategories adds delta into base key-wise and returns base.
func MergeCategories(base, delta map[string]int) map[string]int {
	if base == nil {
		base = make(map[string]int, len(delta))
	}
	for k, v := range delta {
		base[k] += v
	}
	return base
}

// AppUsage is one application's share of a day, in minutes.
type AppUsage struct {
	AppName  string `json:"appName"`
	Duration int    `json:"duration"`
}

// DailyReport summarises one day for display: score, split and the most used apps.
type DailyReport struct {
	Date              string     `json:"date"`
	TotalTime         int        `json:"totalTime"`
	ProductiveTime    int        `json:"productiveTime"`
	NonProductiveTime int        `json:"nonProductiveTime"`
	ProductivityScore int        `json:"productivityScore"`
	TopApps           []AppUsage `json:"topApps"`
	LastUpdated       *time.Time `json:"lastUpdated"`
}
