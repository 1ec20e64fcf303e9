package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndList(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:        "beta",
		Description: "second job",
		Every:       time.Hour,
		Do:          func(ctx context.Context) error { return nil },
	})
	s.Register(Job{
		Name:        "alpha",
		Description: "first job",
		Every:       time.Minute,
		Do:          func(ctx context.Context) error { return nil },
	})

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "alpha", items[0].Name, "listing is ordered by name")
	assert.Equal(t, "beta", items[1].Name)
	assert.Equal(t, StatusIdle, items[0].Status)
	assert.Nil(t, items[0].LastRunAt)
	require.NotNil(t, items[0].NextDate)
	assert.WithinDuration(t, time.Now().Add(time.Minute), *items[0].NextDate, 5*time.Second)
}

func TestRunFulfill(t *testing.T) {
	s := New()
	var calls atomic.Int32
	s.Register(Job{
		Name:  "job",
		Every: time.Hour,
		Do: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background(), "job"))

	require.Eventually(t, func() bool {
		task, err := s.GetTask("job")
		return err == nil && task.Status == StatusFulfill
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())

	task, err := s.GetTask("job")
	require.NoError(t, err)
	assert.Empty(t, task.Message)

	items := s.List()
	require.Len(t, items, 1)
	require.NotNil(t, items[0].LastRunAt)
}

func TestRunReject(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:  "broken",
		Every: time.Hour,
		Do: func(ctx context.Context) error {
			return errors.New("disk full")
		},
	})

	require.NoError(t, s.Run(context.Background(), "broken"))

	require.Eventually(t, func() bool {
		task, err := s.GetTask("broken")
		return err == nil && task.Status == StatusReject
	}, 2*time.Second, 10*time.Millisecond)

	task, err := s.GetTask("broken")
	require.NoError(t, err)
	assert.Equal(t, "disk full", task.Message)
}

func TestRejectMessageClearedOnNextFulfill(t *testing.T) {
	s := New()
	var fail atomic.Bool
	fail.Store(true)
	s.Register(Job{
		Name:  "flaky",
		Every: time.Hour,
		Do: func(ctx context.Context) error {
			if fail.Load() {
				return errors.New("boom")
			}
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background(), "flaky"))
	require.Eventually(t, func() bool {
		task, _ := s.GetTask("flaky")
		return task != nil && task.Status == StatusReject
	}, 2*time.Second, 10*time.Millisecond)

	fail.Store(false)
	require.NoError(t, s.Run(context.Background(), "flaky"))
	require.Eventually(t, func() bool {
		task, _ := s.GetTask("flaky")
		return task != nil && task.Status == StatusFulfill && task.Message == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunUnknownJob(t *testing.T) {
	s := New()
	err := s.Run(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, err = s.GetTask("missing")
	require.Error(t, err)
}

func TestExecuteSkipsWhileRunning(t *testing.T) {
	s := New()
	release := make(chan struct{})
	var calls atomic.Int32
	s.Register(Job{
		Name:  "slow",
		Every: time.Hour,
		Do: func(ctx context.Context) error {
			calls.Add(1)
			<-release
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background(), "slow"))
	require.Eventually(t, func() bool {
		task, _ := s.GetTask("slow")
		return task != nil && task.Status == StatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	// A second trigger while the first is still in flight is dropped.
	require.NoError(t, s.Run(context.Background(), "slow"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	require.Eventually(t, func() bool {
		task, _ := s.GetTask("slow")
		return task != nil && task.Status == StatusFulfill
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartRunsDueJobs(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 4)
	s.Register(Job{
		Name:  "fast",
		Every: 20 * time.Millisecond,
		Do: func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job never fired")
	}
}
