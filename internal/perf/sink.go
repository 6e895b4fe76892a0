// Package perf defines the performance-statistics Sink contract (spec.md
// §1/§6: persistence of performance records is an external collaborator,
// contracts only). The only built-in implementation logs records rather
// than persisting them.
package perf

import (
	"time"

	"github.com/rs/zerolog"
)

// Record is one performance sample a station or ATG loop reports.
type Record struct {
	HashId    string
	Metric    string
	Value     float64
	Timestamp time.Time
}

// Sink accepts performance Records. Real backing stores (time-series DB,
// document store) are out of scope; this interface is the seam a future
// one would implement against.
type Sink interface {
	Record(r Record)
	Close() error
}

// LogSink is the only built-in Sink: it writes each record as a structured
// log line and otherwise discards it, satisfying performanceStorage.type
// == "log" (internal/config.PerformanceStorageConfig).
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink builds a Sink that logs every record through log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "perf-sink").Logger()}
}

func (s *LogSink) Record(r Record) {
	s.log.Info().
		Str("hashId", r.HashId).
		Str("metric", r.Metric).
		Float64("value", r.Value).
		Time("timestamp", r.Timestamp).
		Msg("performance record")
}

func (s *LogSink) Close() error { return nil }

// NoopSink discards every record; used when performanceStorage.enabled is false.
type NoopSink struct{}

func (NoopSink) Record(Record) {}
func (NoopSink) Close() error  { return nil }

// New builds the configured Sink. Only "log" is implemented; any other
// type (or enabled=false) falls back to NoopSink rather than failing
// station startup over an out-of-scope persistence backend.
func New(enabled bool, sinkType string, log zerolog.Logger) Sink {
	if !enabled {
		return NoopSink{}
	}
	switch sinkType {
	case "log", "":
		return NewLogSink(log)
	default:
		log.Warn().Str("type", sinkType).Msg("unknown performanceStorage.type, falling back to noop sink")
		return NoopSink{}
	}
}
