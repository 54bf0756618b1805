package logx

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitLevels(t *testing.T) {
	Init(Config{Debug: true})
	if got := log.Logger.GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", got)
	}

	Init()
	if got := log.Logger.GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", got)
	}
}

func TestInitSetsContextFallback(t *testing.T) {
	Init()
	if zerolog.DefaultContextLogger != &log.Logger {
		t.Fatal("expected the global logger as context fallback")
	}
	if l := zerolog.Ctx(context.Background()); l.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("context logger level = %s", l.GetLevel())
	}
}
