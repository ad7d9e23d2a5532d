package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/gateway"
	"github.com/luciancaetano/kephascord/internal/gatewaytest"
	"github.com/luciancaetano/kephascord/internal/protocol"
)

func startServer(t *testing.T, cfg gatewaytest.ServerConfig) *gatewaytest.Server {
	t.Helper()
	server := gatewaytest.NewServer(cfg)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func newConfig(server *gatewaytest.Server, token string) *gateway.Config {
	logger := zerolog.Nop()
	cfg := gateway.NewConfig(token, kephascord.IntentsDefault|kephascord.IntentsMessages)
	cfg.URL = server.URL()
	cfg.Logger = &logger
	return cfg
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := gateway.NewConfig("tok", kephascord.IntentsDefault)

	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, kephascord.IntentsDefault, cfg.Intents)
	assert.Equal(t, kephascord.GatewayURL(kephascord.GatewayVersion), cfg.URL)
	require.NotNil(t, cfg.RateLimitConfig)
	assert.True(t, cfg.RateLimitConfig.Enabled)
	assert.False(t, gateway.NoRateLimit().Enabled)

	s := gateway.New(cfg)
	assert.Equal(t, kephascord.StateClosed, s.State())
	assert.Nil(t, cfg.Dialer, "New must not modify the caller's config")
}

func TestSessionEndToEnd(t *testing.T) {
	server := startServer(t, gatewaytest.ServerConfig{Token: "tok", SelfID: "1", HeartbeatInterval: 200 * time.Millisecond})

	reg := prometheus.NewRegistry()
	cfg := newConfig(server, "tok")
	cfg.Metrics = reg
	s := gateway.New(cfg)

	ready := make(chan struct{}, 1)
	s.OnReady(func() { ready <- struct{}{} })
	messages := make(chan *kephascord.Message, 4)
	s.OnMessageCreate(func(msg *kephascord.Message) { messages <- msg })

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	conn, err := server.WaitConn(2 * time.Second)
	require.NoError(t, err)

	identifyFrame, err := conn.WaitFrame(kephascord.OpIdentify, 2*time.Second)
	require.NoError(t, err)
	var identify kephascord.Identify
	require.NoError(t, protocol.DecodeData(identifyFrame, &identify))
	assert.Equal(t, "tok", identify.Token)

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("ready handler not called")
	}
	assert.Equal(t, "1", s.SelfID())
	assert.Equal(t, kephascord.StateSteady, s.State())

	require.NoError(t, conn.Dispatch(kephascord.EventMessageCreate, map[string]any{
		"id": "10", "channel_id": "c", "author": map[string]any{"id": "1"}, "content": "mine",
	}))
	require.NoError(t, conn.Dispatch(kephascord.EventMessageCreate, map[string]any{
		"id": "11", "channel_id": "c", "author": map[string]any{"id": "2", "username": "bob"}, "content": "hi",
	}))

	select {
	case msg := <-messages:
		assert.Equal(t, "hi", msg.Content)
		assert.Equal(t, "bob", msg.Author.Username)
	case <-time.After(2 * time.Second):
		t.Fatal("message handler not called")
	}

	require.NoError(t, s.SendPresenceUpdate(context.Background(), kephascord.StatusIdle, []kephascord.Activity{{Name: "tests"}}))
	presenceFrame, err := conn.WaitFrame(kephascord.OpPresenceUpdate, 2*time.Second)
	require.NoError(t, err)
	var presence kephascord.PresenceUpdate
	require.NoError(t, protocol.DecodeData(presenceFrame, &presence))
	assert.Equal(t, kephascord.StatusIdle, presence.Status)

	// The server acks heartbeats, so latency becomes known.
	_, err = conn.WaitFrame(kephascord.OpHeartbeat, 2*time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Latency() > 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, kephascord.StateClosed, s.State())

	// Only the self-authored message was dropped.
	series, err := testutil.GatherAndCount(reg, "kephascord_events_dropped_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestSessionWrongToken(t *testing.T) {
	server := startServer(t, gatewaytest.ServerConfig{Token: "right"})
	s := gateway.New(newConfig(server, "wrong"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, kephascord.ErrAuthenticationRejected)
	assert.Equal(t, kephascord.StateClosed, s.State())
}

func TestRunWithReconnectStopsOnAuthFailure(t *testing.T) {
	server := startServer(t, gatewaytest.ServerConfig{Token: "right"})
	s := gateway.New(newConfig(server, "wrong"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	retries := 0
	err := gateway.RunWithReconnect(ctx, s, func(int) time.Duration {
		retries++
		return time.Millisecond
	})
	assert.ErrorIs(t, err, kephascord.ErrAuthenticationRejected)
	assert.Zero(t, retries)
}

func TestRunWithReconnectStopsOnFatalClose(t *testing.T) {
	server := startServer(t, gatewaytest.ServerConfig{Token: "tok", DisableReady: true})
	server.RegisterHandler(kephascord.OpIdentify, func(conn *gatewaytest.Conn, _ kephascord.Frame) {
		_ = conn.CloseWithCode(kephascord.CloseDisallowedIntents, "Disallowed intent(s).")
	})
	s := gateway.New(newConfig(server, "tok"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := gateway.RunWithReconnect(ctx, s, func(int) time.Duration { return time.Millisecond })
	var closeErr *kephascord.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, kephascord.CloseDisallowedIntents, closeErr.Code)
}

func TestRunWithReconnectRetries(t *testing.T) {
	server := startServer(t, gatewaytest.ServerConfig{Token: "tok"})
	s := gateway.New(newConfig(server, "tok"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := make(chan int, 8)
	errCh := make(chan error, 1)
	go func() {
		errCh <- gateway.RunWithReconnect(ctx, s, func(attempt int) time.Duration {
			attempts <- attempt
			return 10 * time.Millisecond
		})
	}()

	first, err := server.WaitConn(2 * time.Second)
	require.NoError(t, err)
	_, err = first.WaitFrame(kephascord.OpIdentify, 2*time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.State() == kephascord.StateSteady }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, first.CloseWithCode(kephascord.CloseUnknownError, "try again"))

	second, err := server.WaitConn(2 * time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	_, err = second.WaitFrame(kephascord.OpIdentify, 2*time.Second)
	require.NoError(t, err)

	select {
	case attempt := <-attempts:
		assert.Zero(t, attempt, "a connection that reached READY resets the attempt counter")
	case <-time.After(time.Second):
		t.Fatal("delay not consulted")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("RunWithReconnect did not return after cancel")
	}
}
