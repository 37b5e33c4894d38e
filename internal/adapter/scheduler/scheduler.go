// Package scheduler runs periodic jobs on cron schedules pinned to a
// fixed timezone, with overlap control, per-job timeouts and panic
// recovery.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// JobID identifies a registered cron job.
type JobID = cron.EntryID

// OverlapPolicy controls what happens when a run fires while the previous
// run of the same job is still in flight.
type OverlapPolicy int

const (
	// AllowOverlap runs jobs concurrently (default).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning drops the new run while the previous one is active.
	SkipIfRunning
	// DelayIfRunning queues the new run behind the previous one.
	DelayIfRunning
)

// JobOptions tunes a single job.
type JobOptions struct {
	// Name identifies the job in logs.
	Name string
	// Timeout bounds a single run; zero means no deadline.
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks are optional observability callbacks.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
	OnJobError  func(jobName string, err error)
}

// Config configures a Scheduler.
type Config struct {
	Logger *slog.Logger
	// Location is the timezone cron expressions are evaluated in.
	// Defaults to time.Local.
	Location *time.Location
	JobHooks JobHooks
}

type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex
}

// cronLogger adapts the cron logger interface to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(keysAndValues []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	return attrs
}

// Scheduler manages cron jobs. All jobs share one parent context; Stop
// cancels it and waits for the running jobs to drain.
type Scheduler struct {
	cron      *cron.Cron
	logger    *slog.Logger
	hooks     JobHooks
	location  *time.Location
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	startOnce sync.Once
}

// New creates a scheduler with a background parent context.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext creates a scheduler whose jobs stop when parentCtx is
// canceled.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	cronOpts := []cron.Option{
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
	}

	return &Scheduler{
		cron:     cron.New(cronOpts...),
		logger:   logger,
		hooks:    cfg.JobHooks,
		location: loc,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Location returns the timezone schedules are evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// AddJob registers a job on a six-field cron schedule (seconds first),
// e.g. "0 0 9,18 * * *" for 09:00 and 18:00 daily.
func (s *Scheduler) AddJob(schedule string, job JobFunc) (JobID, error) {
	return s.AddJobWithOptions(schedule, job, JobOptions{})
}

// AddJobWithOptions registers a job with explicit options.
func (s *Scheduler) AddJobWithOptions(schedule string, job JobFunc, opts JobOptions) (JobID, error) {
	wrapper := &jobWrapper{
		job:     job,
		options: opts,
	}

	var chain cron.Chain
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		chain = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger))
	case DelayIfRunning:
		chain = cron.NewChain(cron.DelayIfStillRunning(cron.DefaultLogger))
	default:
		chain = cron.NewChain()
	}

	id, err := s.cron.AddJob(schedule, chain.Then(cron.FuncJob(func() {
		s.runJobWrapper(wrapper)
	})))
	if err != nil {
		s.logger.Error("failed to add cron job", "schedule", schedule, "name", opts.Name, "error", err)
		return 0, err
	}

	s.logger.Info("cron job added",
		"schedule", schedule, "name", opts.Name, "timezone", s.location.String(), "id", id)
	return id, nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(id JobID) {
	s.cron.Remove(id)
	s.logger.Info("cron job removed", "id", id)
}

// NextRun returns the next scheduled fire time of the given job, or the
// zero time when the job is unknown or the scheduler is not started.
func (s *Scheduler) NextRun(id JobID) time.Time {
	return s.cron.Entry(id).Next
}

// Start begins evaluating schedules. Safe to call once; subsequent calls
// are no-ops.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler", "timezone", s.location.String())
		s.cron.Start()

		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext is Stop with a deadline. When ctx expires before the
// in-flight jobs drain it returns the context error; the shutdown still
// completes in the background.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil
	}

	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

func (s *Scheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runJobWrapper(wrapper *jobWrapper) {
	jobName := wrapper.options.Name
	if jobName == "" {
		jobName = "unnamed"
	}

	switch wrapper.options.OverlapPolicy {
	case SkipIfRunning:
		if !wrapper.running.TryLock() {
			s.logger.Debug("skipping job execution, already running", "name", jobName)
			return
		}
		defer wrapper.running.Unlock()
	case DelayIfRunning:
		wrapper.running.Lock()
		defer wrapper.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(jobName)
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "name", jobName, "panic", r)
			if s.hooks.OnJobError != nil {
				s.hooks.OnJobError(jobName, panicErr)
			}
		}
	}()

	ctx := s.ctx
	var cancel context.CancelFunc
	if wrapper.options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, wrapper.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := wrapper.job(ctx)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(jobName, duration, err)
	}

	if err != nil {
		s.logger.Error("job failed", "name", jobName, "error", err, "duration", duration)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(jobName, err)
		}
	} else {
		s.logger.Debug("job completed", "name", jobName, "duration", duration)
	}
}

// IsRunning reports whether the scheduler has not been stopped.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}
