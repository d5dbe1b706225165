package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/nutrilens-cli/internal/ai"
	"github.com/KaramelBytes/nutrilens-cli/internal/record"
)

type sourceFunc func(ctx context.Context) ([]record.Record, error)

func (f sourceFunc) All(ctx context.Context) ([]record.Record, error) { return f(ctx) }

func population() []record.Record {
	return []record.Record{
		{ID: "1", Sex: record.Male, HEITotal: 42.5},
		{ID: "2", Sex: record.Female, HEITotal: 61},
		{ID: "3", Sex: record.Female, HEITotal: 55},
	}
}

func staticSource() Source {
	return sourceFunc(func(context.Context) ([]record.Record, error) { return population(), nil })
}

func titledTasks(titles ...string) []Task {
	tasks := make([]Task, len(titles))
	for i, title := range titles {
		tasks[i] = Task{Title: title, Prompt: func([]record.Record) string { return title }}
	}
	return tasks
}

func TestRunKeepsTaskOrderAndIsolatesFailures(t *testing.T) {
	gen := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		switch prompt {
		case "first":
			time.Sleep(30 * time.Millisecond)
			return "one", nil
		case "second":
			return "", errors.New("quota exhausted")
		default:
			return "three", nil
		}
	})
	o := New(staticSource(), gen, WithTasks(titledTasks("first", "second", "third")...))

	st := o.Run(context.Background())
	success, ok := st.(Success)
	require.True(t, ok, "expected Success, got %T", st)
	require.Len(t, success.Insights, 3)

	assert.Equal(t, "first", success.Insights[0].Title)
	assert.Equal(t, "one", success.Insights[0].Text)
	assert.False(t, success.Insights[0].Failed)
	assert.Equal(t, "second", success.Insights[1].Title)
	assert.True(t, success.Insights[1].Failed)
	assert.Equal(t, "Error generating insight: quota exhausted", success.Insights[1].Text)
	assert.Equal(t, "third", success.Insights[2].Title)
	assert.Equal(t, "three", success.Insights[2].Text)
	assert.Zero(t, success.Insights[1].Usage, "failed tasks report no usage")
	assert.Equal(t, st, o.State())
}

type countingGenerator struct {
	usage ai.Usage
}

func (g countingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	c, err := g.Complete(ctx, prompt)
	return c.Text, err
}

func (g countingGenerator) Complete(_ context.Context, prompt string) (ai.Completion, error) {
	return ai.Completion{Text: "about " + prompt, Usage: g.usage}, nil
}

func TestRunRecordsTokenUsage(t *testing.T) {
	gen := countingGenerator{usage: ai.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}}
	o := New(staticSource(), gen, WithTasks(titledTasks("a", "b")...))

	success, ok := o.Run(context.Background()).(Success)
	require.True(t, ok)
	for _, in := range success.Insights {
		assert.Equal(t, 120, in.Usage.TotalTokens, in.Title)
		assert.False(t, in.Estimated)
	}
	total, estimated := success.Usage()
	assert.Equal(t, ai.Usage{PromptTokens: 200, CompletionTokens: 40, TotalTokens: 240}, total)
	assert.False(t, estimated)
}

func TestRunEstimatesUsageForPlainGenerators(t *testing.T) {
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) { return "eight ch", nil })
	o := New(staticSource(), gen, WithTasks(titledTasks("twelve chars")...))

	success, ok := o.Run(context.Background()).(Success)
	require.True(t, ok)
	in := success.Insights[0]
	assert.True(t, in.Estimated)
	assert.Equal(t, ai.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, in.Usage)
	_, estimated := success.Usage()
	assert.True(t, estimated)
}

func TestSnapshotFailureSkipsGeneration(t *testing.T) {
	var calls int32
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "x", nil
	})
	src := sourceFunc(func(context.Context) ([]record.Record, error) { return nil, errors.New("disk gone") })
	o := New(src, gen)

	st := o.Run(context.Background())
	failed, ok := st.(Failure)
	require.True(t, ok, "expected Failure, got %T", st)
	assert.Contains(t, failed.Message, "disk gone")
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.Equal(t, StatusError, o.State().Status())
}

func TestLoadingIsVisibleBeforeDispatch(t *testing.T) {
	var o *Orchestrator
	var seen []Status
	var mu sync.Mutex
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		mu.Lock()
		seen = append(seen, o.State().Status())
		mu.Unlock()
		return "ok", nil
	})
	o = New(staticSource(), gen)
	assert.Equal(t, StatusIdle, o.State().Status())

	o.Run(context.Background())
	require.Len(t, seen, len(DefaultTasks()))
	for _, s := range seen {
		assert.Equal(t, StatusLoading, s)
	}
}

func TestLaterRunWins(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	src := sourceFunc(func(context.Context) ([]record.Record, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-release
		}
		return population(), nil
	})
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) { return "ok", nil })
	o := New(src, gen)

	firstDone := make(chan State, 1)
	go func() { firstDone <- o.Run(context.Background()) }()
	<-entered

	second := o.Run(context.Background()).(Success)
	close(release)
	first := (<-firstDone).(Success)

	require.NotEqual(t, first.RunID, second.RunID)
	final, ok := o.State().(Success)
	require.True(t, ok)
	assert.Equal(t, second.RunID, final.RunID)
}

func TestTaskTimeoutFailsOnlyThatTask(t *testing.T) {
	gen := ai.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		if prompt == "slow" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fast", nil
	})
	o := New(staticSource(), gen, WithTasks(titledTasks("slow", "quick")...), WithTaskTimeout(20*time.Millisecond))

	success := o.Run(context.Background()).(Success)
	assert.Equal(t, ErrorPrefix+context.DeadlineExceeded.Error(), success.Insights[0].Text)
	assert.Equal(t, "fast", success.Insights[1].Text)
}

func TestConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "ok", nil
	})
	o := New(staticSource(), gen, WithTasks(titledTasks("a", "b", "c", "d")...), WithConcurrency(1))
	o.Run(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestPromptLimitTruncates(t *testing.T) {
	var got string
	gen := ai.GeneratorFunc(func(_ context.Context, prompt string) (string, error) {
		got = prompt
		return "ok", nil
	})
	long := Task{Title: "long", Prompt: func([]record.Record) string { return strings.Repeat("x", 400) }}
	o := New(staticSource(), gen, WithTasks(long), WithPromptLimit(10))
	o.Run(context.Background())
	assert.Len(t, got, 40)
}

func TestSubscribeSeesTransitions(t *testing.T) {
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) { return "ok", nil })
	o := New(staticSource(), gen)
	ch, cancel := o.Subscribe()

	o.Run(context.Background())
	var got []Status
	for i := 0; i < 3; i++ {
		got = append(got, (<-ch).Status())
	}
	assert.Equal(t, []Status{StatusIdle, StatusLoading, StatusSuccess}, got)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, View{Status: StatusIdle}, Describe(Idle{}))
	v := Describe(Failure{RunID: "r", Message: "boom"})
	assert.Equal(t, StatusError, v.Status)
	assert.Equal(t, "boom", v.Error)
	v = Describe(Success{RunID: "r", Insights: []Insight{{Title: "t", Text: "x"}}})
	assert.Len(t, v.Insights, 1)
}

func TestStartPublishesLoadingThenCompletes(t *testing.T) {
	release := make(chan struct{})
	gen := ai.GeneratorFunc(func(context.Context, string) (string, error) {
		<-release
		return "ok", nil
	})
	o := New(staticSource(), gen)

	ctx, cancel := context.WithCancel(context.Background())
	loading := o.Start(ctx)
	cancel()
	assert.Equal(t, loading, o.State())

	close(release)
	require.Eventually(t, func() bool {
		s, ok := o.State().(Success)
		return ok && s.RunID == loading.RunID
	}, 2*time.Second, 5*time.Millisecond)
}
