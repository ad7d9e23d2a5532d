package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/internal/logx"
	"github.com/luciancaetano/kephascord/internal/reconnect"
	"github.com/luciancaetano/kephascord/internal/session"
	"github.com/luciancaetano/kephascord/internal/websocket"
)

// Version is reported in the websocket handshake's User-Agent.
const Version = "0.1.0"

// UserAgent is sent by the default dialer.
const UserAgent = "DiscordBot (https://github.com/luciancaetano/kephascord, " + Version + ")"

type Config = session.Config
type RateLimitConfig = session.RateLimitConfig

// New creates a gateway session. Nothing is dialed until Run is called.
//
// A nil cfg.Dialer uses a gorilla/websocket dialer that honours the proxy
// environment variables.
//
// Example:
//
//	cfg := gateway.NewConfig(os.Getenv("BOT_TOKEN"), kephascord.IntentsDefault|kephascord.IntentMessageContent)
//	session := gateway.New(cfg)
//	session.OnMessageCreate(func(msg *kephascord.Message) {
//	    log.Printf("%s: %s", msg.Author.Username, msg.Content)
//	})
//	err := session.Run(ctx)
func New(cfg *Config) kephascord.Session {
	c := *cfg
	if c.Dialer == nil {
		c.Dialer = websocket.NewDialer(UserAgent)
	}
	return session.New(c)
}

// NewConfig returns a configuration with the default gateway URL and the
// default send rate limit.
func NewConfig(token string, intents kephascord.Intents) *Config {
	return &Config{
		Token:           token,
		Intents:         intents,
		URL:             kephascord.GatewayURL(kephascord.GatewayVersion),
		RateLimitConfig: DefaultRateLimitConfig(),
	}
}

// DefaultRateLimitConfig returns the default send rate limit
// (90 frames per minute, burst 20)
func DefaultRateLimitConfig() *RateLimitConfig {
	return session.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with send rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return session.NoRateLimit()
}

// RunWithReconnect calls s.Run until it ends for a reason reconnecting
// cannot fix: the session was closed, ctx was cancelled, the token was
// rejected or the gateway closed with a non-recoverable code.
//
// delay maps the zero-based retry attempt to a backoff; nil uses the
// 1s, 5s, 15s, 30s schedule. The attempt counter restarts after a connection
// that reached READY. Cancel ctx to stop retrying.
func RunWithReconnect(ctx context.Context, s kephascord.Session, delay func(attempt int) time.Duration) error {
	if delay == nil {
		delay = reconnect.Delay
	}

	attempt := 0
	for {
		err := s.Run(ctx)
		if stop, result := terminal(ctx, err); stop {
			return result
		}

		if s.SelfID() != "" {
			attempt = 0
		}
		backoff := delay(attempt)
		attempt++
		logx.Log.Warn().Err(err).Dur("backoff", backoff).Int("attempt", attempt).Msg("gateway connection lost; retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func terminal(ctx context.Context, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	if errors.Is(err, kephascord.ErrAuthenticationRejected) || errors.Is(err, kephascord.ErrAlreadyRunning) {
		return true, err
	}
	var closeErr *kephascord.CloseError
	if errors.As(err, &closeErr) && !closeErr.Recoverable() {
		return true, err
	}
	return false, err
}
