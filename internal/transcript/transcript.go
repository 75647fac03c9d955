// Package transcript writes an asynchronous NDJSON record of every chat message.
//
// Each chat gets its own file at <dir>/<owner>/<chat>.ndjson. Optionally all
// events are also appended to one size-rotated global file.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	// GlobalMaxSizeMB is the rotation threshold of the global file.
	GlobalMaxSizeMB int
}

// Event is one transcript line.
type Event struct {
	Timestamp string         `json:"ts"`
	OwnerID   string         `json:"owner_id"`
	ChatID    string         `json:"chat_id"`
	EventType string         `json:"event"`
	MessageID int            `json:"message_id,omitempty"`
	Sender    string         `json:"sender,omitempty"`
	Text      string         `json:"text,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Logger accepts transcript events.
type Logger interface {
	Log(event Event)
	Close() error
}

// NopLogger drops every event.
type NopLogger struct{}

func (NopLogger) Log(Event)    {}
func (NopLogger) Close() error { return nil }

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func safeComponent(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// FileLogger writes events from a bounded queue on a single goroutine.
type FileLogger struct {
	cfg    Config
	logger *slog.Logger
	global *lumberjack.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	wg     sync.WaitGroup
}

// New returns a FileLogger, or NopLogger when transcripts are disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return NopLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}

	l := &FileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global transcript dir: %w", err)
		}
		maxSize := cfg.GlobalMaxSizeMB
		if maxSize <= 0 {
			maxSize = 100
		}
		l.global = &lumberjack.Logger{
			Filename:   cfg.GlobalPath,
			MaxSize:    maxSize,
			MaxBackups: 5,
			Compress:   true,
		}
	}

	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log enqueues an event. When the queue is full the event is dropped.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("transcript queue full, dropping event", "chat_id", event.ChatID, "event", event.EventType)
	}
}

// Close drains the queue and releases files.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	if l.global != nil {
		if err := l.global.Close(); err != nil {
			return fmt.Errorf("close global transcript: %w", err)
		}
	}
	return nil
}

func (l *FileLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to encode transcript event", "error", err)
			continue
		}
		line = append(line, '\n')

		if err := l.writeChatLine(event, line); err != nil {
			l.logger.Warn("failed to write transcript", "chat_id", event.ChatID, "error", err)
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global transcript", "error", err)
			}
		}
	}
}

func (l *FileLogger) writeChatLine(event Event, line []byte) error {
	dir := filepath.Join(l.cfg.Dir, safeComponent(event.OwnerID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, safeComponent(event.ChatID)+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
