package autoextract

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventStarted       EventType = "started"
	EventFileExtracted EventType = "file-extracted"
	EventFileSkipped   EventType = "file-skipped"
	EventNestedFound   EventType = "nested-found"
	EventFinished      EventType = "finished"
	EventError         EventType = "error"
)

// Event is one lifecycle notification. Per invocation the order is
// started, file events, nested-found events, then finished or error.
// A nested invocation's events come between its parent's nested-found
// and finished.
type Event struct {
	Type         EventType
	InvocationID string
	ParentID     string
	Archive      string
	Level        int
	// File is set on file events, and the nested archive on nested-found.
	File string
	// Reason is set on file-skipped and error events.
	Reason string
	// Result is set on finished and error events.
	Result *ExtractResult
	Err    error
	Time   time.Time
}

// Sink receives events. Emit must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) {
	f(e)
}

// MultiSink forwards every event to each sink in order.
type MultiSink []Sink

// Emit forwards e.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// ChannelSink queues events without bound and delivers them in order on a
// channel, so a slow reader never blocks the pipeline.
type ChannelSink struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
	out    chan Event
}

// NewChannelSink starts the delivery goroutine.
func NewChannelSink() *ChannelSink {
	s := &ChannelSink{out: make(chan Event)}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Emit queues e. Events emitted after Close are dropped.
func (s *ChannelSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, e)
	s.cond.Signal()
}

// Events returns the delivery channel. It is closed after Close once the
// queue is drained.
func (s *ChannelSink) Events() <-chan Event {
	return s.out
}

// Close stops accepting events.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

func (s *ChannelSink) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.out)
			return
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.out <- e
	}
}

// LogSink writes events to a zerolog logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "events").Logger()}
}

// Emit logs e: file events at debug, finished at info, errors at warn.
func (s *LogSink) Emit(e Event) {
	var ev *zerolog.Event
	switch e.Type {
	case EventFileExtracted, EventFileSkipped:
		ev = s.logger.Debug()
	case EventError:
		ev = s.logger.Warn().Err(e.Err)
	default:
		ev = s.logger.Info()
	}

	ev = ev.Str("event", string(e.Type)).
		Str("id", e.InvocationID).
		Str("archive", e.Archive).
		Int("level", e.Level)
	if e.ParentID != "" {
		ev = ev.Str("parent", e.ParentID)
	}
	if e.File != "" {
		ev = ev.Str("file", e.File)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if r := e.Result; r != nil && e.Type == EventFinished {
		ev = ev.Int("files", r.FilesExtracted).
			Int("skipped", r.FilesSkipped).
			Int("filtered", r.FilesFiltered).
			Str("size", humanize.IBytes(uint64(r.ExtractedSize))).
			Dur("took", r.Duration())
		if r.NestingTruncated {
			ev = ev.Bool("truncated", true)
		}
	}
	ev.Msg("Extraction event")
}
