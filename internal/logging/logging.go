package logging

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// DevMode indicates if development logging is enabled
	DevMode = os.Getenv("CITRUX_DEBUG") == "1"

	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
	sink   *lumberjack.Logger
)

// Options controls where the shared logger writes.
type Options struct {
	Path       string
	Debug      bool
	MaxSizeMB  int
	MaxBackups int
}

// Init installs a JSON logger backed by a size-rotated file. Nothing is ever
// written to stdout so that structured output formats stay clean.
func Init(opts Options) error {
	if opts.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return err
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	level := zapcore.InfoLevel
	if opts.Debug || DevMode {
		level = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level)

	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		_ = sink.Close()
	}
	sink = rotator
	DevMode = DevMode || opts.Debug
	logger = zap.New(core).Sugar()
	return nil
}

// Set replaces the shared logger. Tests use it with zaptest/observer cores.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

// L returns the shared logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child logger tagged with a component name.
func Named(component string) *zap.SugaredLogger {
	return L().Named(component)
}

// Sync flushes buffered entries and closes the log file.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = logger.Sync()
	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
}

// DevLog logs only when debug logging is on
func DevLog(format string, args ...interface{}) {
	if DevMode {
		L().Debugf(format, args...)
	}
}

// UserLog logs important user-facing information
func UserLog(format string, args ...interface{}) {
	L().Infof(format, args...)
}

// ErrorLog logs errors
func ErrorLog(format string, args ...interface{}) {
	L().Errorf(format, args...)
}
