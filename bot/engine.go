// Package bot wires the command router, broadcaster and occupancy jobs to the chat transport.
//
// Everything that touches the store runs on the Engine's single loop goroutine: periodic jobs,
// inbound chat events and deferred timers are posted as events and executed one at a time, each
// under the per-tick time budget.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/confbot/telemetry"
)

// ErrStopped is returned by Do once the engine has stopped.
var ErrStopped = errors.New("bot: engine stopped")

// Job is a periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Heartbeat records the last successful run of a job.
type Heartbeat interface {
	MarkJobRun(ctx context.Context, name string) error
}

type event struct {
	kind string // "job" or "event", the span name prefix
	name string
	fn   func(ctx context.Context) error
	done func()
}

// Engine runs jobs and posted events serially.
type Engine struct {
	budget    time.Duration
	heartbeat Heartbeat
	events    chan event
	stopped   chan struct{}
	stopOnce  sync.Once

	mu   sync.Mutex
	jobs []Job

	logger *slog.Logger
}

// NewEngine returns an engine running each unit of work under budget. heartbeat may be nil.
func NewEngine(budget time.Duration, heartbeat Heartbeat) *Engine {
	if budget <= 0 {
		budget = 5 * time.Second
	}
	return &Engine{
		budget:    budget,
		heartbeat: heartbeat,
		events:    make(chan event, 256),
		stopped:   make(chan struct{}),
		logger:    slog.Default().With(slog.String("component", "engine")),
	}
}

// AddJob registers a periodic job. Jobs added after Run has started are ignored.
func (e *Engine) AddJob(j Job) {
	if j.Run == nil || j.Interval <= 0 {
		e.logger.Warn("job disabled", slog.String("job", j.Name), slog.Duration("interval", j.Interval))
		return
	}
	e.mu.Lock()
	e.jobs = append(e.jobs, j)
	e.mu.Unlock()
}

// Post queues fn for the loop. It blocks while the queue is full and returns false once the engine
// has stopped.
func (e *Engine) Post(name string, fn func(ctx context.Context) error) bool {
	return e.post(context.Background(), event{kind: "event", name: name, fn: fn})
}

// Do runs fn on the loop and waits for its result. Callers outside the loop use it for store
// writes that must be answered, such as HTTP requests.
func (e *Engine) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	finished := make(chan struct{})
	result := fmt.Errorf("%s: did not complete", name)
	ev := event{
		kind: "event",
		name: name,
		fn: func(ctx context.Context) error {
			result = fn(ctx)
			return result
		},
		done: func() { close(finished) },
	}
	if !e.post(ctx, ev) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrStopped
	}
	select {
	case <-finished:
		return result
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		select {
		case <-finished:
			return result
		default:
			return ErrStopped
		}
	}
}

func (e *Engine) post(ctx context.Context, ev event) bool {
	select {
	case <-e.stopped:
		return false
	default:
	}
	select {
	case e.events <- ev:
		return true
	case <-e.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

// After posts fn once delay has elapsed.
func (e *Engine) After(delay time.Duration, name string, fn func(ctx context.Context) error) {
	time.AfterFunc(delay, func() {
		if !e.Post(name, fn) {
			e.logger.Warn("deferred event dropped, engine stopped", slog.String("event", name))
		}
	})
}

// Run executes jobs and events until ctx ends. Every job runs once immediately and then on its
// interval; a run still waiting in the queue suppresses further ticks of the same job.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	jobs := append([]Job(nil), e.jobs...)
	e.mu.Unlock()

	defer e.stopOnce.Do(func() { close(e.stopped) })

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			e.schedule(ctx, j)
		}(j)
	}
	e.logger.Info("engine started", slog.Int("jobs", len(jobs)), slog.Duration("tick_budget", e.budget))

	for {
		select {
		case <-ctx.Done():
			e.stopOnce.Do(func() { close(e.stopped) })
			wg.Wait()
			e.logger.Info("engine stopped")
			return nil
		case ev := <-e.events:
			e.execute(ctx, ev)
		}
	}
}

func (e *Engine) schedule(ctx context.Context, j Job) {
	var pending atomic.Bool
	tick := func() {
		if !pending.CompareAndSwap(false, true) {
			e.logger.Debug("job still pending, skipping tick", slog.String("job", j.Name))
			return
		}
		if !e.post(ctx, event{kind: "job", name: j.Name, fn: e.jobRunner(j), done: func() { pending.Store(false) }}) {
			pending.Store(false)
		}
	}

	tick()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopped:
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (e *Engine) jobRunner(j Job) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		err := j.Run(ctx)
		telemetry.ObserveJob(j.Name, time.Since(start), err)
		if err != nil {
			return err
		}
		if e.heartbeat != nil {
			if herr := e.heartbeat.MarkJobRun(ctx, j.Name); herr != nil {
				e.logger.Debug("job heartbeat not recorded", slog.String("job", j.Name), slog.Any("err", herr))
			}
		}
		return nil
	}
}

// execute runs one event under the tick budget. Failures and panics are logged; the loop goes on.
func (e *Engine) execute(parent context.Context, ev event) {
	if ev.done != nil {
		defer ev.done()
	}
	ctx, cancel := context.WithTimeout(parent, e.budget)
	defer cancel()

	err := telemetry.Traced(ctx, ev.kind, ev.name, func(ctx context.Context) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return ev.fn(ctx)
	})
	if err != nil {
		e.logger.Warn("event failed", slog.String("event", ev.name), slog.Any("err", err))
	}
	if ctx.Err() == context.DeadlineExceeded {
		e.logger.Warn("event exceeded tick budget", slog.String("event", ev.name), slog.Duration("budget", e.budget))
	}
}
