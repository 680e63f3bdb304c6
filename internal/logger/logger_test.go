package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		wantErr    bool
	}{
		{"local", "", false},
		{"prod", "warn", false},
		{"staging", "", true},
		{"dev", "loud", true},
	}
	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			l, closer, err := New(Options{Env: tt.env, Level: tt.level})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New(%q, %q) err = %v, wantErr %v", tt.env, tt.level, err, tt.wantErr)
			}
			if l != nil {
				_ = l.Sync()
				if err := closer.Close(); err != nil {
					t.Errorf("Close without file: %v", err)
				}
			}
		})
	}
}

func TestNew_LevelOverride(t *testing.T) {
	l, _, err := New(Options{Env: "prod", Level: "error"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zap.WarnLevel) {
		t.Error("warn enabled with error override")
	}
}

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "meilisync.log")
	l, closer, err := New(Options{
		Env:   "prod",
		Level: "info",
		File:  &Rotation{Filename: path, MaxSizeMB: 1},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("sync finished", zap.String("index", "posts"))
	l.Debug("hidden")
	_ = l.Sync()
	_ = closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"index":"posts"`) || !strings.Contains(out, `"service":"meilisync"`) {
		t.Errorf("log file missing entry fields: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug entry written at info level: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil")
	}
	l := zap.NewExample()
	if got := FromContext(ContextWithLogger(context.Background(), l)); got != l {
		t.Error("logger not round-tripped through context")
	}
}

func TestFromContextOr(t *testing.T) {
	fallback := zap.NewExample()
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Error("fallback not returned for empty context")
	}
	l := zap.NewNop()
	if got := FromContextOr(ContextWithLogger(context.Background(), l), fallback); got != l {
		t.Error("context logger not preferred over fallback")
	}
}
