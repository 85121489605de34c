// Package audit records authentication and authorization decisions for
// local diagnostics. Detail recorded here is never echoed to callers.
package audit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType distinguishes the recorded decision kinds.
type EventType string

const (
	EventAuthentication     EventType = "authentication"
	EventAuthorization      EventType = "authorization"
	EventSessionInvalidated EventType = "session_invalidated"
)

// Event is one recorded decision.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	Principal  string
	Scheme     string
	Action     string
	Resource   string
	Allowed    bool
	Reason     string
	RemoteAddr string
	RequestID  string
}

// Logger writes events asynchronously so the request path never blocks on
// logging. The buffer drops on overflow rather than applying backpressure.
type Logger struct {
	logger *zap.Logger
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
	dropped   int64
	mu        sync.Mutex
}

// NewLogger starts the background writer.
func NewLogger(logger *zap.Logger, bufferSize int) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	l := &Logger{
		logger: logger,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Record enqueues an event, dropping it if the buffer is full.
func (l *Logger) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case l.events <- e:
	default:
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
	}
}

// Dropped returns the number of events lost to overflow.
func (l *Logger) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes buffered events and stops the writer.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.events)
		<-l.done
	})
}

func (l *Logger) run() {
	defer close(l.done)
	for e := range l.events {
		l.logger.Info("audit",
			zap.String("type", string(e.Type)),
			zap.Time("ts", e.Timestamp),
			zap.String("principal", e.Principal),
			zap.String("scheme", e.Scheme),
			zap.String("action", e.Action),
			zap.String("resource", e.Resource),
			zap.Bool("allowed", e.Allowed),
			zap.String("reason", e.Reason),
			zap.String("remote", e.RemoteAddr),
			zap.String("request_id", e.RequestID),
		)
	}
}
