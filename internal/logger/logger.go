package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Env selects the encoder: prod writes JSON, local/dev/docker write
	// colored console output.
	Env string
	// Level overrides the environment level: debug, info, warn, error.
	Level string
	// File, when set, tees every entry into a rotating JSON file.
	File *Rotation
}

// Rotation configures a rotating log file.
type Rotation struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds the process logger. Every entry carries service=meilisync.
// The closer flushes and closes the log file and is a no-op without one.
func New(opts Options) (*zap.Logger, io.Closer, error) {
	var cfg zap.Config
	switch opts.Env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, nil, fmt.Errorf("unknown environment %q for logger", opts.Env)
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	buildOpts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	var closer io.Closer = nopCloser{}
	if opts.File != nil && opts.File.Filename != "" {
		rotator, err := newRotator(*opts.File)
		if err != nil {
			return nil, nil, err
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			cfg.Level,
		)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
		closer = rotator
	}

	l, err := cfg.Build(buildOpts...)
	if err != nil {
		_ = closer.Close()
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return l.With(zap.String("service", "meilisync")), closer, nil
}

func newRotator(r Rotation) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(r.Filename), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   r.Filename,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
	}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
