package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"valorant-rolesync/internal/domain"
	"valorant-rolesync/internal/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Runner is one worker as seen by its loop.
type Runner interface {
	ID() int
	Authenticate(ctx context.Context) error
	RunCycle(ctx context.Context) (domain.CycleReport, error)
}

// Snapshot is the loop's externally visible status.
type Snapshot struct {
	WorkerID      int                 `json:"worker_id"`
	State         string              `json:"state"`
	Authenticated bool                `json:"authenticated"`
	Cycles        int                 `json:"cycles"`
	DroppedTicks  int                 `json:"dropped_ticks"`
	LastReport    *domain.CycleReport `json:"last_report,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
}

// Loop drives a Runner on a fixed interval. A tick that arrives while a cycle is
// still running is dropped, so cycles of one worker never overlap.
type Loop struct {
	runner   Runner
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	state         atomic.Int32
	authenticated atomic.Bool
	wg            sync.WaitGroup

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewLoop(runner Runner, clock clockwork.Clock, interval time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Loop {
	return &Loop{
		runner:   runner,
		clock:    clock,
		interval: interval,
		metrics:  m,
		logger:   logger.With().Int("worker_id", runner.ID()).Logger(),
		snapshot: Snapshot{WorkerID: runner.ID()},
	}
}

// Run starts a cycle immediately and then once per interval. It returns after ctx
// is done and the cycle in flight has stopped.
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info().Dur("interval", l.interval).Msg("scheduler started")
	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			l.logger.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.Chan():
			l.tick(ctx)
		}
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := l.snapshot
	s.State = l.State().String()
	s.Authenticated = l.authenticated.Load()
	return s
}

func (l *Loop) tick(ctx context.Context) {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		l.logger.Warn().Msg("previous cycle still running, dropping tick")
		l.metrics.TickDropped(l.runner.ID())
		l.mu.Lock()
		l.snapshot.DroppedTicks++
		l.mu.Unlock()
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.state.Store(int32(StateIdle))
		l.cycle(ctx)
	}()
}

func (l *Loop) cycle(ctx context.Context) {
	if !l.authenticated.Load() {
		if err := l.runner.Authenticate(ctx); err != nil {
			l.logger.Error().Err(err).Msg("authentication failed, retrying next tick")
			l.record(nil, err)
			return
		}
		l.authenticated.Store(true)
	}

	start := l.clock.Now()
	report, err := l.runner.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			l.authenticated.Store(false)
		}
		l.logger.Error().Err(err).Msg("cycle failed")
		l.metrics.CycleFinished(l.runner.ID(), "failed", l.clock.Since(start))
		l.record(nil, err)
		return
	}

	result := "completed"
	if report.Interrupted {
		result = "interrupted"
	}
	l.metrics.CycleFinished(l.runner.ID(), result, report.Duration)
	l.record(&report, nil)
}

func (l *Loop) record(report *domain.CycleReport, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if report != nil {
		l.snapshot.Cycles++
		l.snapshot.LastReport = report
		l.snapshot.LastError = ""
	}
	if err != nil {
		l.snapshot.LastError = err.Error()
	}
}
