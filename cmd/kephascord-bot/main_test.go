package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/gateway"
	"github.com/luciancaetano/kephascord/internal/config"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "kephascord "+gateway.Version+"\n", out.String())
}

func TestRunRequiresToken(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	require.NoError(t, os.Unsetenv(config.EnvToken))

	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("intents: [default]\n"), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", path})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token is required")
}

func TestSessionConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Token = "tok"
	cfg.GatewayURL = "ws://127.0.0.1:1/"
	cfg.Presence = config.PresenceConfig{Status: "dnd", Activity: "chess"}
	cfg.RateLimit = config.RateLimit{PerMinute: 60, Burst: 3}

	gc, err := sessionConfig(cfg, prometheus.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, "tok", gc.Token)
	assert.Equal(t, kephascord.IntentsDefault|kephascord.IntentsMessages, gc.Intents)
	assert.Equal(t, "ws://127.0.0.1:1/", gc.URL)
	require.NotNil(t, gc.Presence)
	assert.Equal(t, kephascord.StatusDND, gc.Presence.Status)
	require.Len(t, gc.Presence.Activities, 1)
	assert.Equal(t, "chess", gc.Presence.Activities[0].Name)

	require.True(t, gc.RateLimitConfig.Enabled)
	assert.Equal(t, 3, gc.RateLimitConfig.Burst)
	assert.InDelta(t, 1.0, float64(gc.RateLimitConfig.MessagesPerSecond), 1e-9)

	cfg.RateLimit = config.RateLimit{Disabled: true}
	gc, err = sessionConfig(cfg, nil)
	require.NoError(t, err)
	assert.False(t, gc.RateLimitConfig.Enabled)
}

func TestSessionConfigDefaultsRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Token = "tok"

	gc, err := sessionConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, gateway.DefaultRateLimitConfig(), gc.RateLimitConfig)
	assert.Equal(t, kephascord.GatewayURL(kephascord.GatewayVersion), gc.URL)
}

// recordingSession captures registered handlers and presence updates.
type recordingSession struct {
	kephascord.Session
	message  kephascord.MessageHandler
	statuses chan kephascord.Status
}

func (r *recordingSession) OnReady(kephascord.ReadyHandler)                     {}
func (r *recordingSession) OnMessageDelete(kephascord.MessageDeleteHandler)     {}
func (r *recordingSession) OnReactionAdd(kephascord.ReactionHandler)            {}
func (r *recordingSession) OnTyping(kephascord.TypingHandler)                   {}
func (r *recordingSession) OnInteraction(string, kephascord.InteractionHandler) {}
func (r *recordingSession) OnMessageCreate(fn kephascord.MessageHandler)        { r.message = fn }

func (r *recordingSession) SendPresenceUpdate(_ context.Context, status kephascord.Status, _ []kephascord.Activity) error {
	r.statuses <- status
	return nil
}

func TestStatusCommandUpdatesPresence(t *testing.T) {
	rs := &recordingSession{statuses: make(chan kephascord.Status, 1)}
	registerHandlers(context.Background(), rs, config.Default())
	require.NotNil(t, rs.message)

	rs.message(&kephascord.Message{Content: "hello"})
	rs.message(&kephascord.Message{Content: "!status idle"})

	select {
	case status := <-rs.statuses:
		assert.Equal(t, kephascord.StatusIdle, status)
	case <-time.After(2 * time.Second):
		t.Fatal("presence not updated")
	}
	assert.Empty(t, rs.statuses)
}
