package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KushagraAgarwal525/racoon/internal/classifier"
	"github.com/KushagraAgarwal525/racoon/internal/client"
	"github.com/KushagraAgarwal525/racoon/internal/model"
)

type window struct{ start, end time.Time }

type fakeSource struct {
	mu      sync.Mutex
	samples []model.ActivitySample
	err     error
	calls   []window
}

func (f *fakeSource) Samples(_ context.Context, start, end time.Time) ([]model.ActivitySample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, window{start, end})
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.ActivitySample(nil), f.samples...), nil
}

func (f *fakeSource) set(samples []model.ActivitySample, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples, f.err = samples, err
}

type fakeSubmitter struct {
	mu       sync.Mutex
	updates  []model.ProductivityUpdate
	failNext int
	seen     map[string]bool
}

func (f *fakeSubmitter) SubmitUpdate(_ context.Context, u model.ProductivityUpdate) (*client.UpdateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("connection refused")
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	dup := f.seen[u.TaskID]
	f.seen[u.TaskID] = true
	return &client.UpdateResponse{Success: true, Updated: !dup}, nil
}

func (f *fakeSubmitter) sent() []model.ProductivityUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ProductivityUpdate(nil), f.updates...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var t0 = time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	h      *Handle
	source *fakeSource
	sub    *fakeSubmitter
	clock  *fakeClock
}

// newHarness starts a tracker whose schedule never fires during the test; cycles run via Flush.
func newHarness(t *testing.T) *harness {
	t.Helper()
	hs := &harness{source: &fakeSource{}, sub: &fakeSubmitter{}, clock: &fakeClock{t: t0}}
	n := 0
	h, err := Start(context.Background(), Config{UserID: "u1", Interval: time.Hour, InitialDelay: time.Hour}, Deps{
		Source:     hs.source,
		Classifier: classifier.New(nil, zerolog.Nop(), classifier.Options{}),
		Submitter:  hs.sub,
		Log:        zerolog.Nop(),
		Now:        hs.clock.Now,
		NewTaskID: func() string {
			n++
			return fmt.Sprintf("task-%d", n)
		},
	})
	require.NoError(t, err)
	t.Cleanup(h.Stop)
	hs.h = h
	return hs
}

func activity(app string, at time.Time) model.ActivitySample {
	return model.ActivitySample{AppName: app, WindowTitle: app, Timestamp: at, Duration: time.Minute}
}

func TestStart_Validation(t *testing.T) {
	deps := Deps{Source: &fakeSource{}, Classifier: classifier.New(nil, zerolog.Nop(), classifier.Options{}), Submitter: &fakeSubmitter{}}

	_, err := Start(context.Background(), Config{}, deps)
	assert.True(t, model.IsValidation(err))

	_, err = Start(context.Background(), Config{UserID: "u1"}, Deps{})
	assert.True(t, model.IsValidation(err))
}

func TestFlush_SkipsShortWindow(t *testing.T) {
	hs := newHarness(t)
	hs.clock.Advance(5 * time.Second)

	res, err := hs.h.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "window too short", res.Skipped)
	assert.Empty(t, hs.source.calls)
	assert.Empty(t, hs.sub.sent())
}

func TestFlush_AggregatesClassifiesAndSubmits(t *testing.T) {
	hs := newHarness(t)
	hs.source.set([]model.ActivitySample{
		activity("code", t0.Add(5*time.Second)),
		activity("code", t0.Add(20*time.Second)),
		activity("youtube", t0.Add(70*time.Second)),
	}, nil)
	hs.clock.Advance(2 * time.Minute)

	res, err := hs.h.Flush(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Submitted)
	assert.Equal(t, 3, res.Samples)
	assert.Equal(t, 2, res.Buckets)

	sent := hs.sub.sent()
	require.Len(t, sent, 1)
	u := sent[0]
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, "task-1", u.TaskID)
	assert.Equal(t, 2, u.TotalTime)
	assert.Equal(t, 1, u.ProductiveTime)
	assert.Equal(t, map[string]int{"code": 1, "youtube": 1}, u.Categories)
	assert.Equal(t, "2025-05-01T09:02:00Z", u.Timestamp)

	// the next window starts where this one ended
	hs.source.set(nil, nil)
	hs.clock.Advance(time.Minute)
	_, err = hs.h.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, hs.source.calls, 2)
	assert.Equal(t, t0.Add(2*time.Minute), hs.source.calls[1].start)
}

func TestFlush_NoActivityAdvancesWindow(t *testing.T) {
	hs := newHarness(t)
	hs.clock.Advance(time.Minute)

	res, err := hs.h.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no activity", res.Skipped)
	assert.Empty(t, hs.sub.sent())

	hs.clock.Advance(time.Minute)
	_, err = hs.h.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), hs.source.calls[1].start)
}

func TestFlush_FailedSubmissionIsResentWithSameTaskID(t *testing.T) {
	hs := newHarness(t)
	hs.sub.failNext = 1
	hs.source.set([]model.ActivitySample{activity("code", t0.Add(10*time.Second))}, nil)
	hs.clock.Advance(time.Minute)

	_, err := hs.h.Flush(context.Background())
	require.Error(t, err)

	hs.source.set(nil, nil)
	hs.clock.Advance(time.Minute)
	_, err = hs.h.Flush(context.Background())
	require.NoError(t, err)

	sent := hs.sub.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0].TaskID, sent[1].TaskID)
	assert.Equal(t, sent[0].TotalTime, sent[1].TotalTime)
	// the new window does not overlap the resent one
	assert.Equal(t, t0.Add(time.Minute), hs.source.calls[1].start)
}

func TestFlush_SourceErrorKeepsWindow(t *testing.T) {
	hs := newHarness(t)
	hs.source.set(nil, errors.New("screenpipe down"))
	hs.clock.Advance(time.Minute)

	_, err := hs.h.Flush(context.Background())
	require.Error(t, err)

	hs.source.set([]model.ActivitySample{activity("code", t0.Add(10*time.Second))}, nil)
	hs.clock.Advance(time.Minute)
	res, err := hs.h.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0, res.Start)
	assert.True(t, res.Submitted)
}

func TestHandle_LoopRunsAndStops(t *testing.T) {
	source := &fakeSource{}
	source.set([]model.ActivitySample{activity("code", time.Now())}, nil)
	sub := &fakeSubmitter{}

	h, err := Start(context.Background(), Config{
		UserID:       "u1",
		Interval:     20 * time.Millisecond,
		InitialDelay: 10 * time.Millisecond,
		MinWindow:    time.Millisecond,
	}, Deps{
		Source:     source,
		Classifier: classifier.New(nil, zerolog.Nop(), classifier.Options{}),
		Submitter:  sub,
		Log:        zerolog.Nop(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(sub.sent()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
	select {
	case <-h.Done():
	default:
		t.Fatal("loop still running after Stop")
	}
	_, err = h.Flush(context.Background())
	assert.ErrorIs(t, err, ErrStopped)

	// distinct task ids per cycle
	sent := sub.sent()
	assert.NotEqual(t, sent[0].TaskID, sent[1].TaskID)
}

func TestHandle_ParentContextEndsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := Start(ctx, Config{UserID: "u1"}, Deps{
		Source:     &fakeSource{},
		Classifier: classifier.New(nil, zerolog.Nop(), classifier.Options{}),
		Submitter:  &fakeSubmitter{},
		Log:        zerolog.Nop(),
	})
	require.NoError(t, err)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on context cancel")
	}
	h.Stop()
}
