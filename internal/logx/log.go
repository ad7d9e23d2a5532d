package logx

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the shared logger used when a session is not given one.
var Log = log.Logger

func init() {
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	Log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and applies
// it globally. Unknown names leave the level unchanged.
func SetLevel(name string) {
	if name == "" {
		return
	}
	if lvl, err := zerolog.ParseLevel(strings.ToLower(name)); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}
