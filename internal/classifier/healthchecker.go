package classifier

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/KushagraAgarwal525/racoon/internal/health"
)

// ModelHealthChecker monitors the classification model. It is optional for service health
// because Classify degrades to the keyword heuristic when the model is unreachable.
type ModelHealthChecker struct {
	model        Model
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

func NewModelHealthChecker(m Model, log zerolog.Logger, probeTimeout time.Duration) *ModelHealthChecker {
	hc := &ModelHealthChecker{model: m, log: log, probeTimeout: probeTimeout}
	hc.healthy.Store(0) // start unhealthy until first successful probe
	return hc
}

func (c *ModelHealthChecker) Name() string    { return "classifier" }
func (c *ModelHealthChecker) IsHealthy() bool { return c.healthy.Load() == 1 }
func (c *ModelHealthChecker) Optional() bool  { return true }

func (c *ModelHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := func() {
		to := c.probeTimeout
		if to <= 0 {
			to = 2 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, to)
		defer cancel()

		var err error
		if p, ok := c.model.(health.HealthPinger); ok {
			err = p.HealthPing(checkCtx)
		} else {
			_, err = c.model.Generate(checkCtx, "Respond with the single word: productive")
		}
		if err != nil {
			if c.healthy.Swap(0) == 1 {
				c.log.Warn().Str("checker", c.Name()).Err(err).Msg("classifier model unreachable; keyword fallback in effect")
			}
			return
		}
		c.healthy.Store(1)
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
