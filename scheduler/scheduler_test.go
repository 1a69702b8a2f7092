package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/gonzalop/xfer/scheduler"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	scheduler.NoSignal
	remaining int
	steps     int
}

func (c *countingTask) Do() scheduler.Status {
	c.steps++
	if c.remaining == 0 {
		return scheduler.WantDie
	}
	c.remaining--
	return scheduler.Moved
}

func TestStepDrivesToCompletion(t *testing.T) {
	s := scheduler.New()
	task := &countingTask{remaining: 3}
	h := s.Spawn(task, scheduler.Handle{})

	s.RunOnce()

	require.False(t, s.Alive(h))
	require.Equal(t, 4, task.steps) // 3 Moved + 1 WantDie
}

func TestKillCascadesToChildren(t *testing.T) {
	s := scheduler.New()
	parent := &countingTask{remaining: 100}
	child := &countingTask{remaining: 100}

	ph := s.Spawn(parent, scheduler.Handle{})
	ch := s.Spawn(child, ph)

	require.True(t, s.Kill(ph, scheduler.SigTerm))
	require.False(t, s.Alive(ph))
	require.False(t, s.Alive(ch))
}

type stallingTask struct {
	scheduler.NoSignal
	deadline time.Time
	fired    bool
}

func (s *stallingTask) Do() scheduler.Status {
	if time.Now().Before(s.deadline) {
		return scheduler.Stall
	}
	s.fired = true
	return scheduler.WantDie
}

func (s *stallingTask) Wait() scheduler.Waiter {
	return scheduler.Waiter{Deadline: s.deadline}
}

func TestRunWakesOnDeadline(t *testing.T) {
	s := scheduler.New()
	task := &stallingTask{deadline: time.Now().Add(20 * time.Millisecond)}
	s.Spawn(task, scheduler.Handle{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Run(ctx)

	require.True(t, task.fired)
}
