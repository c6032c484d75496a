// Package progress defines the one-way progress reporting port of the
// inference engine. Senders never block: sinks that cannot keep up must
// drop events rather than stall analysis.
package progress

import (
	"time"

	"go.uber.org/zap"
)

// Stage identifies which pipeline stage emitted an event.
type Stage string

const (
	StageProfiling Stage = "profiling"
	StageDiscovery Stage = "discovery"
	StageAnalysis  Stage = "analysis"
	StageScoring   Stage = "scoring"
	StageReport    Stage = "report"
)

// Event is one progress update emitted during analysis.
type Event struct {
	Stage           Stage     `json:"stage"`
	TableName       string    `json:"table_name,omitempty"`
	Message         string    `json:"message"`
	PercentComplete *float64  `json:"percent_complete,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Sink receives progress events. Implementations must not block.
type Sink interface {
	Publish(event Event)
}

// ============================================================================
// Noop sink
// ============================================================================

type noopSink struct{}

// NewNoopSink returns a sink that discards all events. Default for
// headless and test use.
func NewNoopSink() Sink {
	return noopSink{}
}

func (noopSink) Publish(Event) {}

// ============================================================================
// Logger sink
// ============================================================================

type loggerSink struct {
	logger *zap.Logger
}

// NewLoggerSink returns a sink that writes events to a zap logger at
// debug level.
func NewLoggerSink(logger *zap.Logger) Sink {
	return &loggerSink{logger: logger.Named("progress")}
}

func (s *loggerSink) Publish(event Event) {
	fields := []zap.Field{
		zap.String("stage", string(event.Stage)),
		zap.String("message", event.Message),
	}
	if event.TableName != "" {
		fields = append(fields, zap.String("table", event.TableName))
	}
	if event.PercentComplete != nil {
		fields = append(fields, zap.Float64("percent", *event.PercentComplete))
	}
	s.logger.Debug("analysis progress", fields...)
}

// ============================================================================
// Channel sink
// ============================================================================

// ChannelSink forwards events to a buffered channel for UI consumption.
// Events are dropped when the buffer is full.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a channel sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

// Publish implements Sink. Never blocks; drops when the buffer is full.
func (s *ChannelSink) Publish(event Event) {
	select {
	case s.events <- event:
	default:
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Close closes the event channel. Publish must not be called after Close.
func (s *ChannelSink) Close() {
	close(s.events)
}

// ============================================================================
// Multi sink
// ============================================================================

type multiSink struct {
	sinks []Sink
}

// NewMultiSink fans events out to several sinks.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) Publish(event Event) {
	for _, s := range m.sinks {
		s.Publish(event)
	}
}
