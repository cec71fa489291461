// Package logging builds the zap backed loggers used throughout flagbot.
package logging

import (
	"os"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and an optional rotating log file.
type Config struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Level == "" {
		return nil
	}
	if _, err := zapcore.ParseLevel(cfg.Level); err != nil {
		return errors.Wrapf(err, "%s.level", path)
	}
	if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 {
		return errors.Errorf("%s: log rotation limits must not be negative", path)
	}
	return nil
}

// NewLoggerConfig returns a new default logger config.
func NewLoggerConfig() zap.Config {
	// stacktraces off, production keys, colored levels.
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named logger writing to stdout and, when cfg.File is set, to a rotating
// file as JSON. The returned closer flushes and closes the file.
func NewLogger(name string, cfg Config) (golog.Logger, func() error, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, nil, errors.Wrap(err, "bad log level")
		}
		level = parsed
	}
	atomicLevel := zap.NewAtomicLevelAt(level)
	encCfg := NewLoggerConfig().EncoderConfig

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), atomicLevel),
	}

	var rotator *lumberjack.Logger
	if cfg.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		fileEncCfg := encCfg
		fileEncCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncCfg), zapcore.AddSync(rotator), atomicLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar().Named(name)
	closer := func() error {
		// syncing stdout fails on some terminals, the file is written unbuffered.
		//nolint:errcheck
		logger.Sync()
		if rotator == nil {
			return nil
		}
		return rotator.Close()
	}
	return logger, closer, nil
}
