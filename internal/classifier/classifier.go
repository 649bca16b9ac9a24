// Package classifier maps an aggregated activity to a productivity category.
//
// Classification never fails: well-known applications are resolved from a static override
// table, everything else goes to a language model, and any model error or unrecognised
// answer degrades to a keyword heuristic and finally to the scheme's default category.
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/KushagraAgarwal525/racoon/internal/metrics"
	"github.com/KushagraAgarwal525/racoon/internal/model"
)

// Model is the external text-generation capability consulted for unknown applications.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Scheme selects the category set used by a deployment.
type Scheme string

const (
	SchemeBinary  Scheme = "binary"  // productive | unproductive
	SchemeTernary Scheme = "ternary" // productive | neutral | unproductive
)

// DefaultOverrides resolves well-known applications without calling the model.
var DefaultOverrides = map[string]model.Category{
	"vscode":    model.CategoryProductive,
	"code":      model.CategoryProductive,
	"cursor":    model.CategoryProductive,
	"spotify":   model.CategoryUnproductive,
	"netflix":   model.CategoryUnproductive,
	"youtube":   model.CategoryUnproductive,
	"facebook":  model.CategoryUnproductive,
	"instagram": model.CategoryUnproductive,
	"twitter":   model.CategoryUnproductive,
}

// DefaultKeywords mark an activity productive when the model cannot decide.
var DefaultKeywords = []string{
	"work", "code", "develop", "research", "study", "learn",
	"write", "edit", "doc", "sheet", "slide", "meet", "chat",
}

var (
	thinkRx   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	binaryRx  = regexp.MustCompile(`\b(unproductive|productive)\b`)
	ternaryRx = regexp.MustCompile(`\b(unproductive|productive|neutral)\b`)
)

// Options configures a Classifier. Zero values select the defaults above.
type Options struct {
	Scheme      Scheme
	Overrides   map[string]model.Category
	Keywords    []string
	Timeout     time.Duration // per model call
	Concurrency int           // parallel model calls in ClassifyAll
}

// Classifier is safe for concurrent use; its tables are read-only after New.
type Classifier struct {
	model       Model
	scheme      Scheme
	overrides   map[string]model.Category
	keywords    []string
	timeout     time.Duration
	concurrency int
	log         zerolog.Logger
}

// New builds a Classifier. m may be nil, in which case only overrides and keywords are used.
func New(m Model, log zerolog.Logger, opts Options) *Classifier {
	if opts.Scheme != SchemeTernary {
		opts.Scheme = SchemeBinary
	}
	if opts.Overrides == nil {
		opts.Overrides = DefaultOverrides
	}
	if opts.Keywords == nil {
		opts.Keywords = DefaultKeywords
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	c := &Classifier{
		model:       m,
		scheme:      opts.Scheme,
		overrides:   make(map[string]model.Category, len(opts.Overrides)),
		timeout:     opts.Timeout,
		concurrency: opts.Concurrency,
		log:         log,
	}
	for app, cat := range opts.Overrides {
		c.overrides[strings.ToLower(strings.TrimSpace(app))] = c.normalize(cat)
	}
	for _, kw := range opts.Keywords {
		c.keywords = append(c.keywords, strings.ToLower(kw))
	}
	return c
}

// Scheme returns the configured category scheme.
func (c *Classifier) Scheme() Scheme { return c.scheme }

// Default is the category used when nothing else matches.
func (c *Classifier) Default() model.Category {
	if c.scheme == SchemeTernary {
		return model.CategoryNeutral
	}
	return model.CategoryUnproductive
}

// Classify returns the category for one application/window pair.
func (c *Classifier) Classify(ctx context.Context, appName, windowTitle string) model.Category {
	if cat, ok := c.overrides[strings.ToLower(strings.TrimSpace(appName))]; ok {
		metrics.ClassificationsTotal.WithLabelValues(metrics.SourceOverride, string(cat)).Inc()
		return cat
	}

	if c.model != nil {
		cat, err := c.ask(ctx, appName, windowTitle)
		if err == nil {
			metrics.ClassificationsTotal.WithLabelValues(metrics.SourceModel, string(cat)).Inc()
			return cat
		}
		c.log.Warn().Err(err).Str("app", appName).Msg("model classification failed; using keyword heuristic")
	}

	cat := c.heuristic(appName, windowTitle)
	metrics.ClassificationsTotal.WithLabelValues(metrics.SourceHeuristic, string(cat)).Inc()
	return cat
}

// ClassifyAll classifies each bucket independently, calling the model in parallel.
// Output order matches input order.
func (c *Classifier) ClassifyAll(ctx context.Context, buckets []model.AggregatedBucket) []model.ClassifiedBucket {
	out := make([]model.ClassifiedBucket, len(buckets))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i := range buckets {
		i := i
		g.Go(func() error {
			b := buckets[i]
			out[i] = model.ClassifiedBucket{
				AggregatedBucket: b,
				Category:         c.Classify(ctx, b.Sample.AppName, b.Sample.WindowTitle),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// ask queries the model under the per-call timeout and parses its answer.
func (c *Classifier) ask(ctx context.Context, appName, windowTitle string) (cat model.Category, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panic: %v", r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.model.Generate(callCtx, c.prompt(appName, windowTitle))
	if err != nil {
		return "", err
	}
	return c.parse(answer)
}

// parse takes the last category word in the answer, ignoring any <think> block.
func (c *Classifier) parse(answer string) (model.Category, error) {
	text := strings.ToLower(thinkRx.ReplaceAllString(answer, ""))
	rx := binaryRx
	if c.scheme == SchemeTernary {
		rx = ternaryRx
	}
	matches := rx.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("unrecognised model answer %q", truncate(answer, 80))
	}
	return model.Category(matches[len(matches)-1]), nil
}

func (c *Classifier) heuristic(appName, windowTitle string) model.Category {
	text := strings.ToLower(appName + " " + windowTitle)
	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			return model.CategoryProductive
		}
	}
	return c.Default()
}

// normalize folds categories the scheme does not know into its default.
func (c *Classifier) normalize(cat model.Category) model.Category {
	switch cat {
	case model.CategoryProductive, model.CategoryUnproductive:
		return cat
	case model.CategoryNeutral:
		if c.scheme == SchemeTernary {
			return cat
		}
	}
	return c.Default()
}

func (c *Classifier) prompt(appName, windowTitle string) string {
	if c.scheme == SchemeTernary {
		return fmt.Sprintf(`Analyze if this computer activity is productive, unproductive, or neutral.

Context:
- Application: %s
- Window Title: %s

Guidelines for classification:
- Productive: Work-related, learning, development, professional communication
- Unproductive: Entertainment, social media (unless work-related), games
- Neutral: Email, general browsing, mixed-use applications

Respond with ONLY ONE of these exact words: "productive", "unproductive", or "neutral".`, appName, windowTitle)
	}
	return fmt.Sprintf(`Analyze if this computer activity is productive or unproductive.

Context:
- Application: %s
- Window Title: %s

Guidelines for classification:
- Productive: Work-related activities, learning, development, professional communication, research, writing, data analysis
- Unproductive: Entertainment, social media (unless work-related), games, non-work browsing

For ambiguous cases (like browsers), use the window title to determine if it's work-related.

Respond with ONLY ONE of these exact words: "productive" or "unproductive".`, appName, windowTitle)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
