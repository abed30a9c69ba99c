package models

import (
	"context"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/appctx"
)

// Mode is the session-wide data-source switch.
type Mode string

const (
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

func (m Mode) IsDemo() bool {
	return m == ModeDemo
}

// ParseMode accepts "demo"/"live" and the boolean spellings of a demo flag.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "demo", "true", "1", "yes", "on":
		return ModeDemo, true
	case "live", "false", "0", "no", "off":
		return ModeLive, true
	}
	return "", false
}

func WithMode(ctx context.Context, m Mode) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyMode, m)
}

// ModeFromContext returns the mode set for the session, live when none was set.
func ModeFromContext(ctx context.Context) Mode {
	if m, ok := ctx.Value(appctx.ContextKeyMode).(Mode); ok && m != "" {
		return m
	}
	return ModeLive
}
