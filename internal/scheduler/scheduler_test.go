package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PensionSentinel/internal/batch"
)

type countingJob struct {
	mu    sync.Mutex
	calls int
	ran   chan struct{}
	err   error
}

func (j *countingJob) Execute(context.Context) (*batch.Summary, error) {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()
	if j.ran != nil {
		select {
		case j.ran <- struct{}{}:
		default:
		}
	}
	if j.err != nil {
		return nil, j.err
	}
	return &batch.Summary{Total: 2, Processed: 2, ProposalsCreated: 1}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return nil
}

func (n *recordingNotifier) SendWithRetry(ctx context.Context, text string, _ int) error {
	return n.Send(ctx, text)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func newScheduler(job Job, n *recordingNotifier) *Scheduler {
	logger, _ := test.NewNullLogger()
	return New(context.Background(), job, n, logger)
}

func TestStart_RejectsInvalidSchedule(t *testing.T) {
	s := newScheduler(&countingJob{}, &recordingNotifier{})

	err := s.Start("not a cron", "UTC")
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.False(t, s.Running())

	err = s.Start("0 2 * * *", "Mars/Olympus_Mons")
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	assert.False(t, s.Running())
}

func TestStart_SecondStartIsNoop(t *testing.T) {
	s := newScheduler(&countingJob{}, &recordingNotifier{})
	require.NoError(t, s.Start("0 2 * * *", "UTC"))
	defer s.Stop()

	require.NoError(t, s.Start("0 12 * * *", "UTC"))
	st := s.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "0 2 * * *", st.Schedule)
	assert.Equal(t, "Daily at 2:00 AM", st.Description)
	assert.Equal(t, 2, st.NextRun.In(time.UTC).Hour())
}

func TestStart_DefaultsApplied(t *testing.T) {
	s := newScheduler(&countingJob{}, &recordingNotifier{})
	require.NoError(t, s.Start("", ""))
	defer s.Stop()

	st := s.Status()
	assert.Equal(t, DefaultSchedule, st.Schedule)
	assert.Equal(t, DefaultTimezone, st.Timezone)
}

func TestStop_Idempotent(t *testing.T) {
	s := newScheduler(&countingJob{}, &recordingNotifier{})
	s.Stop()
	require.NoError(t, s.Start("@daily", "UTC"))
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	assert.Equal(t, Status{}, s.Status())

	require.NoError(t, s.Start("@hourly", "UTC"))
	assert.True(t, s.Running())
	s.Stop()
}

func TestScheduledRun_NotifiesSummary(t *testing.T) {
	job := &countingJob{ran: make(chan struct{}, 1)}
	n := &recordingNotifier{}
	s := newScheduler(job, n)
	require.NoError(t, s.Start("* * * * * *", "UTC"))

	select {
	case <-job.ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
	s.Stop()

	msgs := n.messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Processed: 2/2 funds")
}

func TestScheduledRun_SkipsWhenBusy(t *testing.T) {
	job := &countingJob{err: batch.ErrRunInProgress}
	n := &recordingNotifier{}
	s := newScheduler(job, n)

	s.scheduledRun()
	assert.Empty(t, n.messages())

	job.err = errors.New("list funds: db locked")
	s.scheduledRun()
	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "db locked")
}

func TestRunNow(t *testing.T) {
	job := &countingJob{}
	n := &recordingNotifier{}
	s := newScheduler(job, n)

	sum, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ProposalsCreated)
	assert.Equal(t, 1, job.calls)
	assert.Empty(t, n.messages())
}

func TestDescribe(t *testing.T) {
	tests := map[string]string{
		"0 2 * * *":   "Daily at 2:00 AM",
		"0  0 * * *":  "Daily at midnight",
		"0 */6 * * *": "Every 6 hours",
		"0 12 * * *":  "Daily at noon",
		"0 8 * * 1":   "Every Monday at 8:00 AM",
		"0 0 1 * *":   "First day of every month at midnight",
		"*/5 * * * *": "Custom schedule",
	}
	for expr, want := range tests {
		assert.Equal(t, want, Describe(expr), expr)
	}
}
