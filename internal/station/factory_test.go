package station

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocppconfig"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/template"
)

func TestBuildStationFlatConnectors(t *testing.T) {
	tpl := &template.Template{
		ChargePointModel:  "model",
		ChargePointVendor: "vendor",
		Power:             json.RawMessage(`22000`),
		VoltageOut:        230,
		OcppVersion:       "1.6",
		Connectors: map[string]template.ConnectorTemplate{
			"1": {Status: "Available"},
			"2": {Status: "Available"},
		},
	}

	st, err := BuildStation(tpl, 1, "hash-1", "station-1", "ws://example", "template-hash", nil)
	require.NoError(t, err)

	assert.Equal(t, OcppVersion16, st.OcppVersion)
	assert.Len(t, st.Connectors, 2)
	assert.Equal(t, 2, st.PowerDivider)
	assert.Equal(t, 22000.0, st.MaximumPower)
	assert.InDelta(t, 22000.0/230.0, st.MaximumAmperage, 0.001)
}

func TestBuildStationEvseTopology(t *testing.T) {
	tpl := &template.Template{
		ChargePointModel:  "model",
		ChargePointVendor: "vendor",
		Power:             json.RawMessage(`[11000, 11000]`),
		VoltageOut:        230,
		OcppVersion:       "2.0.1",
		Evses: map[string]template.EVSETemplate{
			"1": {Connectors: map[string]template.ConnectorTemplate{"1": {}}},
			"2": {Connectors: map[string]template.ConnectorTemplate{"1": {}}},
		},
	}

	st, err := BuildStation(tpl, 1, "hash-1", "station-1", "ws://example", "template-hash", nil)
	require.NoError(t, err)

	assert.Equal(t, OcppVersion201, st.OcppVersion)
	assert.Len(t, st.Evses, 2)
	assert.Equal(t, 2, st.PowerDivider)
	assert.Equal(t, 22000.0, st.MaximumPower)
}

func TestBuildStationNoConnectorsDefaultsToOne(t *testing.T) {
	tpl := &template.Template{ChargePointModel: "m", ChargePointVendor: "v", VoltageOut: 230}

	st, err := BuildStation(tpl, 1, "hash-1", "station-1", "", "template-hash", nil)
	require.NoError(t, err)

	assert.Len(t, st.Connectors, 1)
	_, ok := st.Connectors[1]
	assert.True(t, ok)
}

func TestBuildStationAppliesPersistedConfigWhenHashMatches(t *testing.T) {
	tpl := &template.Template{
		ChargePointModel: "m", ChargePointVendor: "v", VoltageOut: 230,
		Connectors: map[string]template.ConnectorTemplate{"1": {}},
	}
	persisted := &PersistedConfig{
		TemplateHash: "template-hash",
		Keys:         []ocppconfig.Key{{Key: "CustomKey", Value: "custom-value", Visible: true}},
	}

	st, err := BuildStation(tpl, 1, "hash-1", "station-1", "", "template-hash", persisted)
	require.NoError(t, err)

	v, ok := st.ConfigurationKeys.GetValue("CustomKey")
	assert.True(t, ok)
	assert.Equal(t, "custom-value", v)
}

func TestBuildStationRejectsMalformedPower(t *testing.T) {
	tpl := &template.Template{
		ChargePointModel: "m", ChargePointVendor: "v", VoltageOut: 230,
		Power: json.RawMessage(`"not-a-number"`),
	}

	_, err := BuildStation(tpl, 1, "hash-1", "station-1", "", "template-hash", nil)
	assert.Error(t, err)
}
