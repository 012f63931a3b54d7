// Package convlog writes an NDJSON audit trail of conversations, one file
// per identity, off the request path via a bounded async queue.
package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config controls conversation logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one logged conversation line.
type Event struct {
	Phone     string    `json:"phone"`
	Direction string    `json:"direction"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// Logger is the async NDJSON conversation logger. When disabled every
// method is a no-op, so callers never need a nil check.
type Logger struct {
	enabled bool
	dir     string
	queue   chan Event
	done    chan struct{}
	once    sync.Once
	log     *slog.Logger
}

// New creates a conversation logger and starts its writer goroutine.
func New(cfg Config, log *slog.Logger) (*Logger, error) {
	l := &Logger{
		enabled: cfg.Enabled,
		dir:     cfg.Dir,
		done:    make(chan struct{}),
		log:     log,
	}
	if !cfg.Enabled {
		return l, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	size := cfg.QueueSize
	if size <= 0 {
		size = 1000
	}
	l.queue = make(chan Event, size)
	go l.run()
	return l, nil
}

// Log enqueues one event. Drops on a full queue rather than blocking the
// dispatch path.
func (l *Logger) Log(event Event) {
	if !l.enabled {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.log.Warn("conversation log queue full, dropping event", "phone", event.Phone)
	}
}

// Close flushes queued events and stops the writer.
func (l *Logger) Close() error {
	if !l.enabled {
		return nil
	}
	l.once.Do(func() {
		close(l.queue)
		<-l.done
	})
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.log.Warn("conversation log write failed", "phone", event.Phone, "error", err)
		}
	}
}

func (l *Logger) write(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	name := sanitizeFilename(event.Phone) + ".ndjson"
	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

// sanitizeFilename keeps the log file name inside the log directory even
// for hostile-looking identities.
func sanitizeFilename(phone string) string {
	replaced := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, phone)
	if replaced == "" || !filepath.IsLocal(replaced) {
		return "invalid"
	}
	return replaced
}
