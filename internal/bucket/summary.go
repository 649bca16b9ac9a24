package bucket

import (
	"time"

	"github.com/KushagraAgarwal525/racoon/internal/model"
)

// Summary is the time accounting of a batch of classified buckets, in whole minutes.
type Summary struct {
	TotalTime      int
	ProductiveTime int
	Categories     map[string]int // application name -> minutes
}

// Summarize credits each bucket with width minutes of total time, of productive time when
// the bucket is productive, and of time against its application name.
func Summarize(buckets []model.ClassifiedBucket, width time.Duration) Summary {
	minutes := int(width / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	out := Summary{Categories: make(map[string]int)}
	for _, b := range buckets {
		out.TotalTime += minutes
		if b.Category == model.CategoryProductive {
			out.ProductiveTime += minutes
		}
		app := b.Sample.AppName
		if app == "" {
			app = "unknown"
		}
		out.Categories[app] += minutes
	}
	return out
}
