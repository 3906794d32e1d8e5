package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogConfig holds the configuration for a LogBackend.
type LogConfig struct {
	// LogFile is the path of the rotating log file. Empty disables file
	// logging; messages still go to stdout.
	LogFile string

	// DebugLevel is the level applied to every subsystem logger
	// ("trace", "debug", "info", "warn", "error", "critical").
	DebugLevel string

	// MaxLogFiles is how many rolled files to keep. Zero means 3.
	MaxLogFiles int

	// DisableStdout keeps messages out of stdout. Terminal UIs own the
	// screen, so they log to the file only.
	DisableStdout bool
}

// LogBackend ties a slog backend to stdout and an optional rotating log
// file and hands out per-subsystem loggers.
type LogBackend struct {
	mtx     sync.Mutex
	backend *slog.Backend
	rotator *rotator.Rotator
	loggers map[string]slog.Logger
	level   slog.Level
}

// logWriter tees log output to stdout and the rotator, when one exists.
type logWriter struct {
	r        *rotator.Rotator
	noStdout bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	if !w.noStdout {
		os.Stdout.Write(p)
	}
	if w.r != nil {
		return w.r.Write(p)
	}
	return len(p), nil
}

// NewLogBackend creates a log backend from cfg.
func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	var r *rotator.Rotator
	if cfg.LogFile != "" {
		logDir := filepath.Dir(cfg.LogFile)
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
		maxRolls := cfg.MaxLogFiles
		if maxRolls <= 0 {
			maxRolls = 3
		}
		var err error
		r, err = rotator.New(cfg.LogFile, 32*1024, false, maxRolls)
		if err != nil {
			return nil, fmt.Errorf("failed to create file rotator: %w", err)
		}
	}

	level, ok := slog.LevelFromString(cfg.DebugLevel)
	if !ok {
		level = slog.LevelInfo
	}

	lb := &LogBackend{
		backend: slog.NewBackend(&logWriter{r: r, noStdout: cfg.DisableStdout}),
		rotator: r,
		loggers: make(map[string]slog.Logger),
		level:   level,
	}
	return lb, nil
}

// Logger returns the logger for the given subsystem tag, creating it on
// first use.
func (lb *LogBackend) Logger(subsystem string) slog.Logger {
	lb.mtx.Lock()
	defer lb.mtx.Unlock()

	if l, ok := lb.loggers[subsystem]; ok {
		return l
	}
	l := lb.backend.Logger(subsystem)
	l.SetLevel(lb.level)
	lb.loggers[subsystem] = l
	return l
}

// SetLevel changes the level on every logger handed out so far and on the
// ones created afterwards.
func (lb *LogBackend) SetLevel(levelStr string) error {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("unknown debug level %q", levelStr)
	}

	lb.mtx.Lock()
	defer lb.mtx.Unlock()
	lb.level = level
	for _, l := range lb.loggers {
		l.SetLevel(level)
	}
	return nil
}

// Close flushes and closes the underlying rotator, if any.
func (lb *LogBackend) Close() error {
	lb.mtx.Lock()
	defer lb.mtx.Unlock()
	if lb.rotator != nil {
		err := lb.rotator.Close()
		lb.rotator = nil
		return err
	}
	return nil
}
