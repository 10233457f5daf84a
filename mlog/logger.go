package mlog

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogConfig struct {
	// Level, can be "debug" "info" "warn" "error". Default is "info".
	Level string `yaml:"level"`

	// File that logger will be writen into. Default is stderr.
	File string `yaml:"file"`

	// Production enables json output.
	Production bool `yaml:"production"`
}

var (
	stderr = zapcore.Lock(os.Stderr)

	lg = newDefaultLogger()
	m  sync.Mutex
)

func NewLogger(lc *LogConfig) (*zap.Logger, error) {
	lvl, err := parseLevel(lc.Level)
	if err != nil {
		return nil, err
	}

	var out zapcore.WriteSyncer
	if lf := lc.File; len(lf) > 0 {
		f, err := os.OpenFile(lf, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = zapcore.Lock(f)
	} else {
		out = stderr
	}

	if lc.Production {
		return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), out, lvl)), nil
	}
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), out, lvl)), nil
}

func newDefaultLogger() *zap.Logger {
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), stderr, zap.InfoLevel))
}

// L returns the global logger. It is the logger created by the latest
// SetLevel/replacement, or a default stderr logger.
func L() *zap.Logger {
	m.Lock()
	defer m.Unlock()
	return lg
}

func S() *zap.SugaredLogger {
	return L().Sugar()
}

// SetL replaces the global logger.
func SetL(l *zap.Logger) {
	m.Lock()
	defer m.Unlock()
	lg = l
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zap.InfoLevel, nil
	case "debug":
		return zap.DebugLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level [%s]", s)
	}
}
