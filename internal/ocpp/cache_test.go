package ocpp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

func TestRequestCacheResolve(t *testing.T) {
	c := NewRequestCache()

	var resolved []byte
	c.Register("id-1", "Heartbeat", nil, time.Second, func(payload []byte) {
		resolved = payload
	}, func(*ocpperror.Error) {
		t.Fatal("should not reject")
	})

	ok := c.Resolve("id-1", []byte(`{"ok":true}`))
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(resolved))
	assert.Equal(t, 0, c.Len())
}

func TestRequestCacheResolveUnknownIDIsNoOp(t *testing.T) {
	c := NewRequestCache()
	assert.False(t, c.Resolve("missing", nil))
}

func TestRequestCacheTimeout(t *testing.T) {
	c := NewRequestCache()
	done := make(chan *ocpperror.Error, 1)

	c.Register("id-1", "BootNotification", nil, 10*time.Millisecond, func([]byte) {
		t.Fatal("should not resolve")
	}, func(err *ocpperror.Error) {
		done <- err
	})

	select {
	case err := <-done:
		require.NotNil(t, err)
		assert.Equal(t, ocpperror.KindTimeout, err.Kind)
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}
	assert.Equal(t, 0, c.Len())
}

func TestRequestCacheDrainWithError(t *testing.T) {
	c := NewRequestCache()
	rejected := 0
	for i := 0; i < 3; i++ {
		c.Register(string(rune('a'+i)), "Heartbeat", nil, time.Minute, func([]byte) {
			t.Fatal("should not resolve")
		}, func(*ocpperror.Error) {
			rejected++
		})
	}

	c.DrainWithError(ocpperror.Transport("connection closed", nil))
	assert.Equal(t, 3, rejected)
	assert.Equal(t, 0, c.Len())
}
