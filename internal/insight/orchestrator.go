package insight

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/nutrilens-cli/internal/ai"
	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/utils"
)

// ErrorPrefix starts the text of every failed insight.
const ErrorPrefix = "Error generating insight: "

// Source provides the population snapshot for a run.
type Source interface {
	All(ctx context.Context) ([]record.Record, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTasks replaces the default tasks.
func WithTasks(tasks ...Task) Option {
	return func(o *Orchestrator) { o.tasks = tasks }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithConcurrency caps the number of generation calls in flight. Zero or
// less runs every task at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithTaskTimeout bounds each generation call. A timed out task fails on
// its own; the run still succeeds.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.taskTimeout = d }
}

// WithPromptLimit truncates prompts to about n tokens.
func WithPromptLimit(n int) Option {
	return func(o *Orchestrator) { o.promptLimit = n }
}

// Orchestrator runs the insight tasks against a generator and publishes the
// resulting state. Only the most recently started run may publish.
type Orchestrator struct {
	src         Source
	gen         ai.Generator
	tasks       []Task
	log         logrus.FieldLogger
	concurrency int
	taskTimeout time.Duration
	promptLimit int

	mu      sync.Mutex
	seq     uint64
	state   State
	subs    map[int]chan State
	nextSub int
}

func New(src Source, gen ai.Generator, opts ...Option) *Orchestrator {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	o := &Orchestrator{
		src:   src,
		gen:   gen,
		tasks: DefaultTasks(),
		log:   discard,
		state: Idle{},
		subs:  make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the latest published state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe returns a channel that first yields the current state and then
// every published transition. A subscriber that falls behind loses the
// oldest pending values; State stays authoritative. cancel closes the channel.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 16)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.state
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

// Run performs one orchestration run and returns its terminal state. The
// returned state is published only if no newer run has started meanwhile.
func (o *Orchestrator) Run(ctx context.Context) State {
	seq, loading := o.begin()
	return o.finish(ctx, seq, loading)
}

// Start publishes Loading and completes the run in the background.
func (o *Orchestrator) Start(ctx context.Context) Loading {
	seq, loading := o.begin()
	go o.finish(context.WithoutCancel(ctx), seq, loading)
	return loading
}

func (o *Orchestrator) begin() (uint64, Loading) {
	loading := Loading{RunID: uuid.NewString(), StartedAt: time.Now()}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.setLocked(loading)
	return o.seq, loading
}

func (o *Orchestrator) finish(ctx context.Context, seq uint64, loading Loading) State {
	runID := loading.RunID
	log := o.log.WithField("run_id", runID)
	log.WithField("tasks", len(o.tasks)).Debug("insight run started")

	records, err := o.src.All(ctx)
	if err != nil {
		log.WithError(err).Error("failed to load population snapshot")
		failed := Failure{RunID: runID, Message: fmt.Sprintf("load population: %v", err), FinishedAt: time.Now()}
		o.publish(seq, failed, log)
		return failed
	}

	insights := o.dispatch(ctx, records, log)
	failedTasks := 0
	for _, in := range insights {
		if in.Failed {
			failedTasks++
		}
	}
	done := Success{RunID: runID, Insights: insights, FinishedAt: time.Now()}
	usage, _ := done.Usage()
	log.WithFields(logrus.Fields{
		"records":           len(records),
		"failed":            failedTasks,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"duration":          time.Since(loading.StartedAt).String(),
	}).Info("insight run finished")
	o.publish(seq, done, log)
	return done
}

// dispatch builds every prompt from the one snapshot, generates them
// concurrently and returns results in task order.
func (o *Orchestrator) dispatch(ctx context.Context, records []record.Record, log logrus.FieldLogger) []Insight {
	prompts := make([]string, len(o.tasks))
	for i, t := range o.tasks {
		prompts[i] = utils.TruncateToTokenLimit(t.Prompt(records), o.promptLimit)
	}

	out := make([]Insight, len(o.tasks))
	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, t := range o.tasks {
		g.Go(func() error {
			out[i] = o.generate(ctx, t.Title, prompts[i], log)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) generate(ctx context.Context, title, prompt string, log logrus.FieldLogger) Insight {
	if o.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.taskTimeout)
		defer cancel()
	}
	c, err := o.complete(ctx, prompt)
	if err != nil {
		fields := logrus.Fields{"task": title}
		if hint := ai.Hint(err); hint != "" {
			fields["hint"] = hint
		}
		log.WithFields(fields).WithError(err).Warn("insight task failed")
		return Insight{Title: title, Text: ErrorPrefix + err.Error(), Failed: true}
	}
	log.WithFields(logrus.Fields{
		"task":              title,
		"prompt_tokens":     c.Usage.PromptTokens,
		"completion_tokens": c.Usage.CompletionTokens,
		"estimated":         c.Estimated,
	}).Debug("insight task finished")
	return Insight{Title: title, Text: c.Text, Usage: c.Usage, Estimated: c.Estimated}
}

// complete asks the generator for usage when it can report it and estimates
// usage otherwise.
func (o *Orchestrator) complete(ctx context.Context, prompt string) (ai.Completion, error) {
	if cg, ok := o.gen.(ai.Completer); ok {
		return cg.Complete(ctx, prompt)
	}
	text, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		return ai.Completion{}, err
	}
	return ai.Completion{Text: text, Usage: ai.EstimateUsage(prompt, text), Estimated: true}, nil
}

func (o *Orchestrator) publish(seq uint64, s State, log logrus.FieldLogger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seq != o.seq {
		log.WithField("status", s.Status()).Debug("discarding result of superseded run")
		return
	}
	o.setLocked(s)
}

func (o *Orchestrator) setLocked(s State) {
	o.state = s
	for _, ch := range o.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
