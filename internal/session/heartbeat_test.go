package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noJitter(time.Duration) time.Duration { return 0 }

func TestHeartbeatCadence(t *testing.T) {
	var beats atomic.Int32
	task := startHeartbeat(context.Background(), 20*time.Millisecond, noJitter,
		func(context.Context) error {
			beats.Add(1)
			return nil
		}, nil)

	time.Sleep(210 * time.Millisecond)
	task.Stop()

	// One beat at t=0, then one every 20ms; timers only ever fire late.
	n := beats.Load()
	assert.GreaterOrEqual(t, n, int32(6))
	assert.LessOrEqual(t, n, int32(12))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, beats.Load(), "no beat after Stop")
	assert.NoError(t, task.Err())
}

func TestHeartbeatFirstTickUsesJitter(t *testing.T) {
	fired := make(chan time.Time, 1)
	start := time.Now()
	task := startHeartbeat(context.Background(), time.Hour,
		func(time.Duration) time.Duration { return 30 * time.Millisecond },
		func(context.Context) error {
			select {
			case fired <- time.Now():
			default:
			}
			return nil
		}, nil)
	defer task.Stop()

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("first heartbeat not sent after jitter")
	}
}

func TestHeartbeatStopBeforeFirstTick(t *testing.T) {
	var beats atomic.Int32
	task := startHeartbeat(context.Background(), 10*time.Millisecond,
		func(time.Duration) time.Duration { return 50 * time.Millisecond },
		func(context.Context) error {
			beats.Add(1)
			return nil
		}, nil)

	task.Stop()
	task.Stop()
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, beats.Load())

	select {
	case <-task.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestHeartbeatContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := startHeartbeat(ctx, time.Hour, noJitter, func(context.Context) error { return nil }, nil)
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop ignored context cancellation")
	}
}

func TestHeartbeatFailureEndsLoop(t *testing.T) {
	beatErr := errors.New("write failed")
	var beats atomic.Int32
	failed := make(chan error, 2)

	task := startHeartbeat(context.Background(), 5*time.Millisecond, noJitter,
		func(context.Context) error {
			if beats.Add(1) == 3 {
				return beatErr
			}
			return nil
		},
		func(err error) { failed <- err })

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, beatErr)
	case <-time.After(2 * time.Second):
		t.Fatal("onFail not called")
	}
	<-task.Done()

	require.ErrorIs(t, task.Err(), beatErr)
	assert.Equal(t, int32(3), beats.Load())
	assert.Empty(t, failed, "onFail must be called once")
}

func TestRandomJitter(t *testing.T) {
	assert.Zero(t, randomJitter(0))
	assert.Zero(t, randomJitter(-time.Second))

	interval := 40 * time.Millisecond
	for i := 0; i < 1000; i++ {
		d := randomJitter(interval)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.Less(t, d, interval)
	}
}
