package station

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocppconfig"
)

func TestLoadPersistedConfigMissingFileReturnsNil(t *testing.T) {
	cfg, err := LoadPersistedConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSaveAndLoadPersistedConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station.state.json")

	st := &Station{ConfigurationKeys: ocppconfig.New(true)}
	st.ConfigurationKeys.Set(ocppconfig.Key{Key: "HeartbeatInterval", Value: "60", Visible: true}, true)

	require.NoError(t, SavePersistedConfig(path, "template-hash", st))

	loaded, err := LoadPersistedConfig(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "template-hash", loaded.TemplateHash)

	require.Len(t, loaded.Keys, 1)
	assert.Equal(t, "HeartbeatInterval", loaded.Keys[0].Key)
	assert.Equal(t, "60", loaded.Keys[0].Value)
}

func TestApplyPersistedConfigSkipsOnHashMismatch(t *testing.T) {
	st := &Station{ConfigurationKeys: ocppconfig.New(true)}
	persisted := &PersistedConfig{
		TemplateHash: "old-hash",
		Keys:         []ocppconfig.Key{{Key: "CustomKey", Value: "x", Visible: true}},
	}

	applyPersistedConfig(st, persisted, "new-hash")

	_, ok := st.ConfigurationKeys.GetValue("CustomKey")
	assert.False(t, ok)
}

func TestApplyPersistedConfigOverlaysOnHashMatch(t *testing.T) {
	st := &Station{ConfigurationKeys: ocppconfig.New(true)}
	persisted := &PersistedConfig{
		TemplateHash: "same-hash",
		Keys:         []ocppconfig.Key{{Key: "CustomKey", Value: "x", Visible: true}},
	}

	applyPersistedConfig(st, persisted, "same-hash")

	v, ok := st.ConfigurationKeys.GetValue("CustomKey")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}
