package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jdziat/confinity/pkg/core"
)

// Pruner deletes finished invocations older than a retention window each
// time its schedule fires.
type Pruner struct {
	journal   core.Journal
	retention time.Duration
	schedule  Schedule
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// PrunerOption configures a Pruner.
type PrunerOption func(*Pruner)

// WithLogger sets the logger for prune runs.
func WithLogger(l *slog.Logger) PrunerOption {
	return func(p *Pruner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces time.Now when computing the cutoff.
func WithClock(now func() time.Time) PrunerOption {
	return func(p *Pruner) { p.now = now }
}

// NewPruner creates a Pruner. Retention must be positive.
func NewPruner(journal core.Journal, retention time.Duration, sched Schedule, opts ...PrunerOption) (*Pruner, error) {
	if journal == nil {
		return nil, errors.New("pruner: journal is required")
	}
	if retention <= 0 {
		return nil, errors.New("pruner: retention must be positive")
	}
	if sched == nil {
		sched = Every(time.Hour)
	}

	p := &Pruner{
		journal:   journal,
		retention: retention,
		schedule:  sched,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunOnce prunes immediately and returns the number of deleted records.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.journal.Prune(ctx, cutoff)
	if err != nil {
		p.logger.ErrorContext(ctx, "prune failed", "cutoff", cutoff, "error", err)
		return 0, err
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "pruned invocations", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Start runs the pruner in the background until ctx is canceled or Stop is
// called. Starting a running pruner is a no-op.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(p.schedule, cron.FuncJob(func() {
		_, _ = p.RunOnce(ctx)
	}))
	c.Start()

	p.cron = c
	p.cancel = cancel
	p.running = true

	go func() {
		<-ctx.Done()
		p.stop(c)
	}()
}

// Stop halts the schedule and waits for an in-progress run to finish.
func (p *Pruner) Stop() {
	p.stop(nil)
}

// stop halts the running schedule; a non-nil only limits it to that cron.
func (p *Pruner) stop(only *cron.Cron) {
	p.mu.Lock()
	if !p.running || (only != nil && p.cron != only) {
		p.mu.Unlock()
		return
	}
	c, cancel := p.cron, p.cancel
	p.running = false
	p.cron = nil
	p.mu.Unlock()

	<-c.Stop().Done()
	cancel()
}
