package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"kioskhelper/internal/config"
)

// Level selects one of the per-level log files.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel maps a URL segment such as "warning" to a Level.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelInfo, LevelWarning, LevelError:
		return Level(s), true
	}
	return "", false
}

// Logger provides leveled logging (info/warning/error) to files and stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	files      map[Level]*os.File
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	logger := &Logger{
		logDir: config.LogDirectory,
		files:  make(map[Level]*os.File, 3),
	}

	logger.setupLoggers()
	return logger
}

func (l *Logger) setupLoggers() {
	for _, level := range []Level{LevelInfo, LevelWarning, LevelError} {
		l.files[level] = l.openLogFile(l.Path(level))
	}

	infoWriter := io.MultiWriter(os.Stdout, l.files[LevelInfo])
	warningWriter := io.MultiWriter(os.Stdout, l.files[LevelWarning])
	errorWriter := io.MultiWriter(os.Stderr, l.files[LevelError])

	l.infoLog = log.New(infoWriter, "ℹ️  INFO    ", log.Ldate|log.Ltime|log.Lshortfile)
	l.warningLog = log.New(warningWriter, "⚠️  WARNING ", log.Ldate|log.Ltime|log.Lshortfile)
	l.errorLog = log.New(errorWriter, "❌ ERROR   ", log.Ldate|log.Ltime|log.Lshortfile)
}

func (l *Logger) openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Path returns the file backing the given level.
func (l *Logger) Path(level Level) string {
	return filepath.Join(l.logDir, string(level)+".log")
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Output(2, fmt.Sprintf(format, v...))
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Output(2, fmt.Sprintf(format, v...))
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Output(2, fmt.Sprintf(format, v...))
}

// Clean truncates the file of one level. Entries written afterwards keep appending.
func (l *Logger) Clean(level Level) error {
	l.mu.Lock()
	file, ok := l.files[level]
	var err error
	if ok {
		err = file.Truncate(0)
	}
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	if err != nil {
		return fmt.Errorf("failed to truncate %s log: %w", level, err)
	}
	l.Info("🧹 %s log cleared", level)
	return nil
}

// Close releases the log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for level, file := range l.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s log: %w", level, err)
		}
	}
	return firstErr
}
