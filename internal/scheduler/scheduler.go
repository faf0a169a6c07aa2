// Package scheduler runs named maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the work done on each tick. ctx is cancelled on Stop.
type JobFunc func(ctx context.Context) error

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitzero"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

type job struct {
	entry    cron.EntryID
	schedule string
	fn       JobFunc
	running  bool
	lastRun  time.Time
	lastErr  error
}

// Scheduler runs jobs on cron expressions. A job never overlaps itself: a
// tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*job

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates an idle Scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		logger: slog.Default(),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddJob schedules fn under name, replacing any job of the same name.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.entry)
		delete(s.jobs, name)
	}

	entry, err := s.cron.AddFunc(cronExpr, func() {
		if s.begin(name) {
			s.run(name)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[name] = &job{entry: entry, schedule: cronExpr, fn: fn}
	s.logger.Info("scheduled job",
		"job", name,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entry).Next)
	return nil
}

// RemoveJob unschedules a job. Unknown names are ignored.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[name]; ok {
		s.cron.Remove(j.entry)
		delete(s.jobs, name)
		s.logger.Info("removed job", "job", name)
	}
}

// IsScheduled reports whether name has been added.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[name]
	return ok
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning returns true between Start and Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop halts the cron loop, cancels running jobs and returns a context that
// is done once they have all returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// Trigger runs a job now, outside its schedule.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is stopped")
	}
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %s is not scheduled", name)
	}
	if j.running {
		s.mu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	j.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(name)
	return nil
}

// begin marks a job running. It returns false when the job should be
// skipped.
func (s *Scheduler) begin(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if s.stopped || !ok || j.running {
		return false
	}
	j.running = true
	s.wg.Add(1)
	return true
}

// run executes a job. The caller has already called begin or the
// equivalent bookkeeping.
func (s *Scheduler) run(name string) {
	defer s.wg.Done()

	s.mu.RLock()
	j := s.jobs[name]
	s.mu.RUnlock()
	if j == nil {
		return
	}

	start := time.Now()
	err := j.fn(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	j.running = false
	j.lastErr = err
	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	j.lastRun = time.Now()
	s.logger.Debug("job completed", "job", name, "duration", time.Since(start))
}

// Status returns every job's status, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for name, j := range s.jobs {
		st := JobStatus{
			Name:     name,
			Running:  j.running,
			LastRun:  j.lastRun,
			NextRun:  s.cron.Entry(j.entry).Next,
			Schedule: j.schedule,
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(a, b int) bool { return statuses[a].Name < statuses[b].Name })
	return statuses
}

// ValidateCronExpr checks an expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
