// Package scheduler triggers investment batch runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"PensionSentinel/internal/batch"
	"PensionSentinel/internal/notifier"
)

const (
	DefaultSchedule = "0 2 * * *"
	DefaultTimezone = "America/New_York"
)

// ErrInvalidSchedule is returned by Start for a bad expression or timezone.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Five-field cron with an optional leading seconds field, plus
// descriptors such as @daily and @every 6h.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Job is the batch execution path.
type Job interface {
	Execute(ctx context.Context) (*batch.Summary, error)
}

// Scheduler owns one cron handle. The zero value is not usable; use New.
type Scheduler struct {
	ctx      context.Context
	job      Job
	notifier notifier.Notifier
	log      logrus.FieldLogger

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	expr  string
	loc   *time.Location
}

// New creates a stopped scheduler. ctx bounds scheduled runs.
func New(ctx context.Context, job Job, n notifier.Notifier, log logrus.FieldLogger) *Scheduler {
	if n == nil {
		n = notifier.Noop{}
	}
	return &Scheduler{ctx: ctx, job: job, notifier: n, log: log.WithField("component", "scheduler")}
}

// Start validates expr and tz and registers the batch job. Calling Start
// on a running scheduler is a no-op.
func (s *Scheduler) Start(expr, tz string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.log.WithField("schedule", s.expr).Warn("scheduler already running, ignoring start")
		return nil
	}
	if strings.TrimSpace(expr) == "" {
		expr = DefaultSchedule
	}
	if strings.TrimSpace(tz) == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, tz, err)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
	}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.PrintfLogger(s.log)), cron.SkipIfStillRunning(cron.PrintfLogger(s.log))),
	)
	s.entry = c.Schedule(sched, cron.FuncJob(s.scheduledRun))
	c.Start()

	s.cron, s.expr, s.loc = c, expr, loc
	s.log.WithFields(logrus.Fields{
		"schedule":    expr,
		"description": Describe(expr),
		"timezone":    loc.String(),
		"next_run":    c.Entry(s.entry).Next.Format(time.RFC3339),
	}).Info("scheduler started")
	return nil
}

// Stop halts the schedule and waits for an in-flight run. It is safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Running reports whether a schedule is registered.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Status describes the active schedule.
type Status struct {
	Running     bool      `json:"running"`
	Schedule    string    `json:"schedule,omitempty"`
	Description string    `json:"description,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	NextRun     time.Time `json:"nextRun,omitempty"`
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return Status{}
	}
	return Status{
		Running:     true,
		Schedule:    s.expr,
		Description: Describe(s.expr),
		Timezone:    s.loc.String(),
		NextRun:     s.cron.Entry(s.entry).Next,
	}
}

// RunNow executes the batch job out of band and returns its summary.
func (s *Scheduler) RunNow(ctx context.Context) (*batch.Summary, error) {
	s.log.Info("manual batch run requested")
	return s.job.Execute(ctx)
}

func (s *Scheduler) scheduledRun() {
	s.log.Info("scheduled batch run triggered")
	sum, err := s.job.Execute(s.ctx)
	if errors.Is(err, batch.ErrRunInProgress) {
		s.log.Warn("previous batch run still in progress, skipping")
		return
	}
	if err != nil {
		s.log.WithError(err).Error("scheduled batch run failed")
	}
	if sendErr := s.notifier.SendWithRetry(s.ctx, notifier.FormatBatchSummary(sum, err), 3); sendErr != nil {
		s.log.WithError(sendErr).Error("send batch summary failed")
	}
}

var descriptions = map[string]string{
	"0 2 * * *":   "Daily at 2:00 AM",
	"0 0 * * *":   "Daily at midnight",
	"0 */6 * * *": "Every 6 hours",
	"0 12 * * *":  "Daily at noon",
	"0 8 * * 1":   "Every Monday at 8:00 AM",
	"0 0 1 * *":   "First day of every month at midnight",
}

// Describe returns a human description of common schedules.
func Describe(expr string) string {
	if d, ok := descriptions[strings.Join(strings.Fields(expr), " ")]; ok {
		return d
	}
	return "Custom schedule"
}
