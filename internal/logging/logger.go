// Package logging provides categorized zap-backed logging for grokrelay.
// Each subsystem logs through its own named category; categories can be
// switched off individually and the level can be changed at runtime.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, shutdown
	CategoryConfig    Category = "config"    // Config load/reload
	CategoryTransport Category = "transport" // Relay API requests
	CategoryInject    Category = "inject"    // Text injection into the page
	CategoryObserve   Category = "observe"   // Reply scraping
	CategoryBridge    Category = "bridge"    // Poll loop ticks
	CategoryBrowser   Category = "browser"   // Chrome/CDP session
	CategoryRelay     Category = "relay"     // Relay server
	CategoryChat      Category = "chat"      // Chat client
)

// Categories lists every category in use.
var Categories = []Category{
	CategoryBoot, CategoryConfig, CategoryTransport, CategoryInject,
	CategoryObserve, CategoryBridge, CategoryBrowser, CategoryRelay, CategoryChat,
}

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, text
	File       string          // empty = stderr
	Categories map[string]bool // Per-category toggles, missing = enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
	sink       *os.File
)

// Initialize builds the root zap logger from opts. Safe to call again;
// the previous sink is closed.
func Initialize(opts Options) error {
	if err := SetLevel(opts.Level); err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(opts.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	out := zapcore.Lock(os.Stderr)
	var file *os.File
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		file = f
		out = zapcore.AddSync(f)
	}

	l := zap.New(zapcore.NewCore(enc, out, level))

	mu.Lock()
	if sink != nil {
		_ = sink.Close()
	}
	sink = file
	root = l
	categories = opts.Categories
	loggers = make(map[Category]*Logger)
	mu.Unlock()
	return nil
}

// Replace swaps the root logger, returning a func restoring the previous one.
// Used by the CLI to share its zap logger and by tests to observe output.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prevRoot, prevCats := root, categories
	root = l
	categories = nil
	loggers = make(map[Category]*Logger)
	mu.Unlock()
	return func() {
		mu.Lock()
		root, categories = prevRoot, prevCats
		loggers = make(map[Category]*Logger)
		mu.Unlock()
	}
}

// SetLevel changes the level of every logger at runtime.
func SetLevel(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		s = "info"
	case "warning":
		s = "warn"
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return nil
}

// Level returns the current level name.
func Level() string {
	return level.Level().String()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category, sugar: root.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// With returns a child logger carrying structured key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries (call at shutdown).
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) {
	Get(CategoryBoot).Warn(format, args...)
}

// Bridge logs to the bridge category
func Bridge(format string, args ...interface{}) {
	Get(CategoryBridge).Info(format, args...)
}

// Browser logs to the browser category
func Browser(format string, args ...interface{}) {
	Get(CategoryBrowser).Info(format, args...)
}

// BrowserDebug logs debug to the browser category
func BrowserDebug(format string, args ...interface{}) {
	Get(CategoryBrowser).Debug(format, args...)
}

// Relay logs to the relay category
func Relay(format string, args ...interface{}) {
	Get(CategoryRelay).Info(format, args...)
}

// RelayDebug logs debug to the relay category
func RelayDebug(format string, args ...interface{}) {
	Get(CategoryRelay).Debug(format, args...)
}

// TransportDebug logs debug to the transport category
func TransportDebug(format string, args ...interface{}) {
	Get(CategoryTransport).Debug(format, args...)
}
