// Package logging builds the single process-wide structured logger each
// feed handler binary constructs in main, per SPEC_FULL.md §10.
package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/rickgao/binance-feed/internal/config"
)

var levelByName = map[string]slog.Level{
	"trace": slog.LevelDebug - 4, // slog has no trace level; one step below debug
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// New builds a *slog.Logger from a handler's LoggingConfig: a
// slog.LevelVar selected by cfg.Level (so it can be adjusted later
// without reconstructing the handler), writing JSON to cfg.File when set
// or text to stderr otherwise.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, ok := levelByName[cfg.Level]
	if !ok {
		return nil, fmt.Errorf("unknown logging.level %q", cfg.Level)
	}

	var lv slog.LevelVar
	lv.Set(level)

	opts := &slog.HandlerOptions{Level: &lv}

	if cfg.File == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", cfg.File, err)
	}
	return slog.New(slog.NewJSONHandler(f, opts)), nil
}
