// Package logging provides logger creation.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dekarrin/jellog"
)

// Logger is the structured logger accepted by the service layer. Args are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Provider selects a logging backend.
type Provider int

const (
	// NoLog discards everything.
	NoLog Provider = iota
	// Slog writes text records through log/slog.
	Slog
	// Jellog writes through github.com/dekarrin/jellog.
	Jellog
)

func (p Provider) String() string {
	switch p {
	case NoLog:
		return "none"
	case Slog:
		return "slog"
	case Jellog:
		return "jellog"
	default:
		return fmt.Sprintf("Provider(%d)", int(p))
	}
}

// ParseProvider accepts the names printed by String. The empty string
// selects Slog.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "slog", "std":
		return Slog, nil
	case "jellog":
		return Jellog, nil
	case "none", "off":
		return NoLog, nil
	}
	return NoLog, fmt.Errorf("unknown log provider %q", s)
}

// New creates a new logger of the given provider. If filename is blank, it will
// not log to disk, only stderr, and the stderr logger will be configured at
// debug level instead of info level.
//
// The returned Closer releases the log file. It is never nil and is safe to
// call more than once.
func New(p Provider, filename string) (Logger, io.Closer, error) {
	switch p {
	case NoLog:
		return NoOpLogger{}, nopCloser{}, nil
	case Jellog:
		j := jellog.New(jellog.Defaults[string]().WithComponent("bifrost"))
		if filename == "" {
			j.AddHandler(jellog.LvTrace, jellog.NewStderrHandler(nil))
			return jellogLogger{j: j}, nopCloser{}, nil
		}
		f, err := openLogFile(filename)
		if err != nil {
			return nil, nil, err
		}
		j.AddHandler(jellog.LvTrace, &fileHandler{f: f})
		j.AddHandler(jellog.LvInfo, jellog.NewStderrHandler(nil))
		return jellogLogger{j: j}, f, nil
	case Slog:
		if filename == "" {
			h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
			return slog.New(h), nopCloser{}, nil
		}
		f, err := openLogFile(filename)
		if err != nil {
			return nil, nil, err
		}
		h := slog.NewTextHandler(io.MultiWriter(os.Stderr, f), &slog.HandlerOptions{Level: slog.LevelInfo})
		return slog.New(h), f, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider: %q", p.String())
	}
}

func openLogFile(filename string) (*logFile, error) {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open logfile: %q: %w", filename, err)
	}
	return &logFile{f: f}, nil
}

// logFile serializes writes to the log file and turns writes after Close
// into os.ErrClosed instead of touching a recycled descriptor.
type logFile struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

func (lf *logFile) Write(p []byte) (int, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.closed {
		return 0, os.ErrClosed
	}
	return lf.f.Write(p)
}

func (lf *logFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.closed {
		return nil
	}
	lf.closed = true
	return lf.f.Close()
}

// fileHandler is a jellog handler over a logFile. jellog's own FileHandler
// keeps its descriptor private and cannot be closed.
type fileHandler struct {
	f *logFile
}

func (fh *fileHandler) HandlerOptions() jellog.HandlerOptions[string] {
	return jellog.HandlerOptions[string]{Formatter: jellog.LineFormat{}}
}

func (fh *fileHandler) Output(_ int, evt jellog.Event[string]) error {
	_, err := fh.f.Write(jellog.LineFormat{}.Format(evt))
	return err
}

func (fh *fileHandler) InsertBreak() error {
	_, err := fh.f.Write(jellog.LineFormat{}.Break())
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NoOpLogger is a logger that performs no operations.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

type jellogLogger struct {
	j jellog.Logger[string]
}

func (log jellogLogger) Debug(msg string, args ...any) {
	log.j.Debug(withAttrs(msg, args))
}

func (log jellogLogger) Info(msg string, args ...any) {
	log.j.Info(withAttrs(msg, args))
}

func (log jellogLogger) Warn(msg string, args ...any) {
	log.j.Warn(withAttrs(msg, args))
}

func (log jellogLogger) Error(msg string, args ...any) {
	log.j.Error(withAttrs(msg, args))
}

// withAttrs renders key/value pairs after msg the way slog's text handler
// does. A trailing key without value is printed under !BADKEY.
func withAttrs(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " !BADKEY=%v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}
