package session

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// heartbeatTask is the running heartbeat loop of one connection.
type heartbeatTask struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// randomJitter picks the first heartbeat delay in [0, interval).
func randomJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return rand.N(interval)
}

// startHeartbeat calls beat once after jitter(interval), then every interval,
// until Stop is called or ctx ends. A failing beat ends the loop: the error is
// kept for Err and handed to onFail. Failed beats are never retried here.
func startHeartbeat(ctx context.Context, interval time.Duration, jitter func(time.Duration) time.Duration,
	beat func(context.Context) error, onFail func(error)) *heartbeatTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &heartbeatTask{cancel: cancel, done: make(chan struct{})}
	if jitter == nil {
		jitter = randomJitter
	}
	go t.run(ctx, interval, jitter(interval), beat, onFail)
	return t
}

func (t *heartbeatTask) run(ctx context.Context, interval, first time.Duration,
	beat func(context.Context) error, onFail func(error)) {
	defer close(t.done)

	timer := time.NewTimer(first)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// The timer and the cancellation can be ready together; cancellation wins.
		if ctx.Err() != nil {
			return
		}

		if err := beat(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
			if onFail != nil {
				onFail(err)
			}
			return
		}

		timer.Reset(interval)
	}
}

// Stop cancels the loop and waits for it to exit. Safe to call more than once.
func (t *heartbeatTask) Stop() {
	t.cancel()
	<-t.done
}

// Done is closed once the loop has exited.
func (t *heartbeatTask) Done() <-chan struct{} {
	return t.done
}

// Err returns the error that ended the loop, if a beat failed.
func (t *heartbeatTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
