package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/internal/protocol"
)

var errTransportClosed = errors.New("fake transport closed")

// fakeTransport is an in-memory kephascord.Transport. Frames pushed with
// push/dispatch are returned by Receive in order; frames written by the
// session are decoded and recorded.
type fakeTransport struct {
	inbound chan []byte
	failCh  chan error
	closed  chan struct{}

	closeOnce  sync.Once
	closeCount atomic.Int32
	closeCode  atomic.Int32

	// sendErr, when set before the session starts, can fail a write.
	sendErr func(kephascord.Frame) error

	mu     sync.Mutex
	sent   []kephascord.Frame
	sentCh chan kephascord.Frame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 1024),
		failCh:  make(chan error, 1),
		closed:  make(chan struct{}),
		sentCh:  make(chan kephascord.Frame, 1024),
	}
}

func (f *fakeTransport) Send(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errTransportClosed
	default:
	}
	frame, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	if f.sendErr != nil {
		if err := f.sendErr(frame); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	f.mu.Unlock()
	select {
	case f.sentCh <- frame:
	default:
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	// Queued frames are delivered before a failure, and a failure before a
	// local close is observed.
	select {
	case data := <-f.inbound:
		return data, nil
	default:
	}
	select {
	case err := <-f.failCh:
		return nil, err
	default:
	}
	select {
	case data := <-f.inbound:
		return data, nil
	case err := <-f.failCh:
		return nil, err
	case <-f.closed:
		return nil, errTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.closeCount.Add(1)
	f.closeOnce.Do(func() {
		f.closeCode.Store(int32(code))
		close(f.closed)
	})
	return nil
}

func (f *fakeTransport) pushRaw(data string) {
	f.inbound <- []byte(data)
}

func (f *fakeTransport) push(t *testing.T, op kephascord.Opcode, data any) {
	t.Helper()
	frame, err := kephascord.NewFrame(op, data)
	require.NoError(t, err)
	encoded, err := protocol.Encode(frame)
	require.NoError(t, err)
	f.inbound <- encoded
}

func (f *fakeTransport) dispatch(t *testing.T, seq int64, event kephascord.EventType, data any) {
	t.Helper()
	frame, err := kephascord.NewDispatchFrame(seq, event, data)
	require.NoError(t, err)
	encoded, err := protocol.Encode(frame)
	require.NoError(t, err)
	f.inbound <- encoded
}

// fail makes the next Receive return err, as if the peer closed the connection.
func (f *fakeTransport) fail(err error) {
	f.failCh <- err
}

func (f *fakeTransport) waitSent(t *testing.T, op kephascord.Opcode) kephascord.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case frame := <-f.sentCh:
			if frame.Op == op {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s frame", op)
			return kephascord.Frame{}
		}
	}
}

func (f *fakeTransport) sentCount(op kephascord.Opcode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, frame := range f.sent {
		if frame.Op == op {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	transport kephascord.Transport
	err       error
	dials     atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (kephascord.Transport, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

// blockingDialer never connects; Dial returns once its context is done.
type blockingDialer struct {
	dialing chan struct{}
	once    sync.Once
}

func newBlockingDialer() *blockingDialer {
	return &blockingDialer{dialing: make(chan struct{})}
}

func (d *blockingDialer) Dial(ctx context.Context, url string) (kephascord.Transport, error) {
	d.once.Do(func() { close(d.dialing) })
	<-ctx.Done()
	return nil, ctx.Err()
}

// newTestSession builds a session on ft. The first heartbeat is delayed by a
// full interval unless the test overrides s.jitter.
func newTestSession(t *testing.T, ft *fakeTransport, mutate ...func(*Config)) *Session {
	t.Helper()
	logger := zerolog.Nop()
	cfg := Config{
		Token:           "test-token",
		Intents:         kephascord.IntentsDefault | kephascord.IntentsMessages,
		Dialer:          &fakeDialer{transport: ft},
		RateLimitConfig: NoRateLimit(),
		Logger:          &logger,
		Metrics:         prometheus.NewRegistry(),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	s := New(cfg)
	s.jitter = func(interval time.Duration) time.Duration { return interval }
	return s
}

// startSession runs s in the background and returns the channel Run's result
// is delivered on.
func startSession(t *testing.T, s *Session) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(context.Background())
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return errCh
}

// handshake plays hello and READY and waits until the session is steady.
func handshake(t *testing.T, s *Session, ft *fakeTransport, interval time.Duration, selfID string) {
	t.Helper()
	ft.push(t, kephascord.OpHello, kephascord.Hello{HeartbeatInterval: interval.Milliseconds()})
	ft.waitSent(t, kephascord.OpIdentify)
	ft.dispatch(t, 1, kephascord.EventReady, map[string]any{
		"session_id": "gw-session",
		"user":       map[string]any{"id": selfID},
	})
	require.Eventually(t, func() bool { return s.SelfID() == selfID }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, kephascord.StateSteady, s.State())
}

func waitResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}
