package perf

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewReturnsNoopSinkWhenDisabled(t *testing.T) {
	s := New(false, "log", zerolog.Nop())
	_, ok := s.(NoopSink)
	assert.True(t, ok)
}

func TestNewReturnsLogSinkForLogType(t *testing.T) {
	s := New(true, "log", zerolog.Nop())
	_, ok := s.(*LogSink)
	assert.True(t, ok)
}

func TestNewFallsBackToNoopForUnknownType(t *testing.T) {
	s := New(true, "redis", zerolog.Nop())
	_, ok := s.(NoopSink)
	assert.True(t, ok)
}

func TestLogSinkRecordAndCloseDoNotPanic(t *testing.T) {
	s := NewLogSink(zerolog.Nop())
	assert.NotPanics(t, func() {
		s.Record(Record{HashId: "h", Metric: "m", Value: 1})
		assert.NoError(t, s.Close())
	})
}
