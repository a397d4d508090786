package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := NewScheduler(nil)
	job := &countingJob{name: "cleanup"}

	assert.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)
}

func TestRegisterRejectsNil(t *testing.T) {
	s := NewScheduler(nil)

	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "x"}, nil), ErrNilSchedule)
}

func TestRunNowExecutesAndRecordsResult(t *testing.T) {
	s := NewScheduler(nil)
	job := &countingJob{name: "cleanup"}
	assert.NoError(t, s.Register(job, Every(time.Hour)))

	result, err := s.RunNow(context.Background(), "cleanup")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), job.runs.Load())

	infos := s.ListJobs()
	assert.Len(t, infos, 1)
	assert.Equal(t, "cleanup", infos[0].Name)
	assert.NotNil(t, infos[0].LastResult)
}

func TestRunNowPropagatesJobError(t *testing.T) {
	s := NewScheduler(nil)
	jobErr := errors.New("boom")
	assert.NoError(t, s.Register(&countingJob{name: "broken", err: jobErr}, Every(time.Hour)))

	result, err := s.RunNow(context.Background(), "broken")

	assert.ErrorIs(t, err, jobErr)
	assert.False(t, result.Success)
}

func TestRunNowUnknownJob(t *testing.T) {
	s := NewScheduler(nil)

	_, err := s.RunNow(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStartStopLifecycle(t *testing.T) {
	s := NewScheduler(nil)

	assert.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestIntervalSchedule(t *testing.T) {
	sched := Every(15 * time.Minute)
	now := time.Now()

	assert.Equal(t, now.Add(15*time.Minute), sched.Next(now))
	assert.Equal(t, "@every 15m0s", sched.String())
}
