package ocpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCall(t *testing.T) {
	frame, err := Parse([]byte(`[2,"abc-123","Heartbeat",{}]`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCall, frame.Type)
	assert.Equal(t, "abc-123", frame.ID)
	assert.Equal(t, "Heartbeat", frame.Action)
	assert.JSONEq(t, `{}`, string(frame.Payload))
}

func TestParseCallResult(t *testing.T) {
	frame, err := Parse([]byte(`[3,"abc-123",{"currentTime":"2026-07-30T00:00:00Z"}]`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCallResult, frame.Type)
	assert.Equal(t, "abc-123", frame.ID)
}

func TestParseCallErrorWithDetails(t *testing.T) {
	frame, err := Parse([]byte(`[4,"abc-123","NotImplemented","no handler",{"hint":"x"}]`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCallError, frame.Type)
	assert.Equal(t, "NotImplemented", frame.ErrorCode)
	assert.Equal(t, "no handler", frame.ErrorDescription)
	assert.JSONEq(t, `{"hint":"x"}`, string(frame.ErrorDetails))
}

func TestParseCallErrorWithoutDetails(t *testing.T) {
	frame, err := Parse([]byte(`[4,"abc-123","NotImplemented","no handler"]`))
	require.NoError(t, err)
	assert.Nil(t, frame.ErrorDetails)
}

func TestParseRejectsShortArray(t *testing.T) {
	_, err := Parse([]byte(`[2,"abc"]`))
	assert.Error(t, err)
}

func TestParseRejectsNonArray(t *testing.T) {
	_, err := Parse([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestParseRejectsUnknownMessageType(t *testing.T) {
	_, err := Parse([]byte(`[9,"abc","Heartbeat",{}]`))
	assert.Error(t, err)
}

func TestBuildCallRoundTrips(t *testing.T) {
	data, err := BuildCall("id-1", "Heartbeat", map[string]string{})
	require.NoError(t, err)

	frame, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "id-1", frame.ID)
	assert.Equal(t, "Heartbeat", frame.Action)
}

func TestBuildCallErrorDefaultsDetails(t *testing.T) {
	data, err := BuildCallError("id-1", "InternalError", "boom", nil)
	require.NoError(t, err)

	frame, err := Parse(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(frame.ErrorDetails))
}
