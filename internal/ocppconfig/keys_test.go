package ocppconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPreservesInsertionOrder(t *testing.T) {
	s := New(true)
	s.Set(Key{Key: "B", Value: "2"}, false)
	s.Set(Key{Key: "A", Value: "1"}, false)
	s.Set(Key{Key: "C", Value: "3"}, false)

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"B", "A", "C"}, []string{all[0].Key, all[1].Key, all[2].Key})
}

func TestSetNoOverwriteIsNoOp(t *testing.T) {
	s := New(true)
	s.Set(Key{Key: "K", Value: "1"}, false)

	changed := s.Set(Key{Key: "K", Value: "2"}, false)
	assert.False(t, changed)

	v, ok := s.GetValue("K")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestSetOverwriteReplacesAtomically(t *testing.T) {
	s := New(true)
	s.Set(Key{Key: "K", Value: "1"}, false)

	changed := s.Set(Key{Key: "K", Value: "2"}, true)
	assert.True(t, changed)

	v, ok := s.GetValue("K")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestCaseInsensitiveLookup(t *testing.T) {
	s := New(false)
	s.Set(Key{Key: "HeartbeatInterval", Value: "30"}, false)

	v, ok := s.GetValue("heartbeatinterval")
	require.True(t, ok)
	assert.Equal(t, "30", v)
}

func TestSetHeartbeatIntervalKeepsAliasInSync(t *testing.T) {
	s := New(true)
	s.SetHeartbeatInterval(30)

	hb, ok := s.GetValue(KeyHeartbeatInterval)
	require.True(t, ok)
	hbAlias, ok := s.GetValue(KeyHeartBeatIntervalAlias)
	require.True(t, ok)
	assert.Equal(t, "30", hb)
	assert.Equal(t, "30", hbAlias)

	s.SetHeartbeatInterval(60)
	hb, _ = s.GetValue(KeyHeartbeatInterval)
	hbAlias, _ = s.GetValue(KeyHeartBeatIntervalAlias)
	assert.Equal(t, "60", hb)
	assert.Equal(t, "60", hbAlias)
}

func TestFilterReturnsUnknownKeys(t *testing.T) {
	s := New(true)
	s.Set(Key{Key: "A", Value: "1"}, false)

	found, unknown := s.Filter([]string{"A", "B"})
	require.Len(t, found, 1)
	assert.Equal(t, "A", found[0].Key)
	assert.Equal(t, []string{"B"}, unknown)
}
