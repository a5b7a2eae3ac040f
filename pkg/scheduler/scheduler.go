// Package scheduler runs named tasks on a fixed cadence with at most one
// concurrent execution per task ID.
//
// Overlapping ticks for a task still in flight are skipped, not queued.
// Task errors and panics are contained and logged - one bad run never
// breaks the cadence.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Task describes one scheduled task.
type Task struct {
	// ID is the unique task key. Serialization is per ID: two tasks
	// with different IDs run independently.
	ID string

	// Every is the cadence between run starts.
	Every time.Duration

	// Timeout bounds a single run. Zero means no per-run timeout.
	Timeout time.Duration

	// Fn is the task body. The passed context is cancelled on timeout
	// or scheduler shutdown.
	Fn func(ctx context.Context) error
}

// Snapshot is the observable state of one task, for the status surface.
type Snapshot struct {
	TaskID    string    `json:"taskId"`
	Runs      int64     `json:"runs"`
	Failures  int64     `json:"failures"`
	Skips     int64     `json:"skips"`
	InFlight  bool      `json:"inFlight"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

type taskState struct {
	task Task

	inFlight atomic.Bool
	runs     atomic.Int64
	failures atomic.Int64
	skips    atomic.Int64

	mu        sync.Mutex
	lastRun   time.Time
	lastError string
}

// Scheduler owns a set of tasks and their tickers.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	tasks   map[string]*taskState
	order   []string
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		logger: logger,
		tasks:  make(map[string]*taskState),
	}
}

// Add registers a task. Fails on duplicate IDs, on a missing body, on a
// non-positive cadence, or after Start.
func (s *Scheduler) Add(t Task) error {
	if t.ID == "" {
		return errors.New("scheduler: task id is required")
	}
	if t.Fn == nil {
		return errors.New("scheduler: task fn is required")
	}
	if t.Every <= 0 {
		return fmt.Errorf("scheduler: task %s: cadence must be positive", t.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler: cannot add tasks after start")
	}
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("scheduler: duplicate task id %s", t.ID)
	}
	s.tasks[t.ID] = &taskState{task: t}
	s.order = append(s.order, t.ID)
	return nil
}

// Start launches one ticker goroutine per task. Each task runs once
// immediately, then on its cadence. Start returns right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler: already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, id := range s.order {
		state := s.tasks[id]
		s.wg.Add(1)
		go func(state *taskState) {
			defer s.wg.Done()
			s.runLoop(runCtx, state)
		}(state)
	}
	return nil
}

// Stop cancels all task contexts and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Snapshots returns the current state of every task, in registration order.
func (s *Scheduler) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.order))
	for _, id := range s.order {
		state := s.tasks[id]
		state.mu.Lock()
		snap := Snapshot{
			TaskID:    id,
			Runs:      state.runs.Load(),
			Failures:  state.failures.Load(),
			Skips:     state.skips.Load(),
			InFlight:  state.inFlight.Load(),
			LastRun:   state.lastRun,
			LastError: state.lastError,
		}
		state.mu.Unlock()
		out = append(out, snap)
	}
	return out
}

// runLoop drives one task: an immediate run, then one per tick.
func (s *Scheduler) runLoop(ctx context.Context, state *taskState) {
	s.runOnce(ctx, state)

	ticker := time.NewTicker(state.task.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, state)
		}
	}
}

// runOnce executes the task body once, skipping if a previous run for
// the same ID is still in flight.
func (s *Scheduler) runOnce(ctx context.Context, state *taskState) {
	if !state.inFlight.CompareAndSwap(false, true) {
		state.skips.Add(1)
		s.logger.Warn("Skipping scheduled run, previous run still in flight",
			zap.String("task_id", state.task.ID))
		return
	}
	defer state.inFlight.Store(false)

	runID := uuid.New().String()
	runCtx := ctx
	var cancel context.CancelFunc
	if state.task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, state.task.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.invoke(runCtx, state.task, runID)

	state.runs.Add(1)
	state.mu.Lock()
	state.lastRun = start
	if err != nil {
		state.lastError = err.Error()
	} else {
		state.lastError = ""
	}
	state.mu.Unlock()

	if err != nil {
		state.failures.Add(1)
		s.logger.Error("Scheduled run failed",
			zap.String("task_id", state.task.ID),
			zap.String("run_id", runID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Debug("Scheduled run completed",
		zap.String("task_id", state.task.ID),
		zap.String("run_id", runID),
		zap.Duration("duration", time.Since(start)))
}

// invoke runs the task body, converting panics into errors so a broken
// task cannot take the scheduler down.
func (s *Scheduler) invoke(ctx context.Context, t Task, runID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s run %s panicked: %v", t.ID, runID, r)
		}
	}()
	return t.Fn(ctx)
}
