package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/config"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestStartSpawnsConfiguredStationCount(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeFile(t, dir, "station.json", `{
		"chargePointModel": "model",
		"chargePointVendor": "vendor",
		"power": 22000,
		"voltageOut": 230,
		"ocppVersion": "1.6",
		"Connectors": {"1": {"status": "Available"}}
	}`)
	cfgPath := writeFile(t, dir, "config.json", `{
		"uiServer": {"enabled": false},
		"supervisionUrls": ["ws://localhost:9999"],
		"stationTemplateUrls": [{"file": "`+tplPath+`", "numberOfStations": 3}],
		"worker": {"elementStartDelay": 0}
	}`)

	log := zerolog.Nop()
	cfgStore, err := config.Load(cfgPath, log)
	require.NoError(t, err)

	v16Svc, err := v16.NewService()
	require.NoError(t, err)
	v201Svc, err := v201.NewService()
	require.NoError(t, err)

	sup := New(cfgStore, v16Svc, v201Svc, log)
	require.NoError(t, sup.Start())
	defer sup.Stop()

	assert.Equal(t, 3, sup.manager.Size())
	assert.Len(t, sup.Bus().HashIds(), 3)
}

func TestStopStopsEveryStation(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeFile(t, dir, "station.json", `{
		"chargePointModel": "model",
		"chargePointVendor": "vendor",
		"power": 22000,
		"voltageOut": 230,
		"ocppVersion": "1.6",
		"Connectors": {"1": {"status": "Available"}}
	}`)
	cfgPath := writeFile(t, dir, "config.json", `{
		"uiServer": {"enabled": false},
		"supervisionUrls": ["ws://localhost:9999"],
		"stationTemplateUrls": [{"file": "`+tplPath+`", "numberOfStations": 1}]
	}`)

	log := zerolog.Nop()
	cfgStore, err := config.Load(cfgPath, log)
	require.NoError(t, err)

	v16Svc, err := v16.NewService()
	require.NoError(t, err)
	v201Svc, err := v201.NewService()
	require.NoError(t, err)

	sup := New(cfgStore, v16Svc, v201Svc, log)
	require.NoError(t, sup.Start())

	sup.Stop()
	assert.Equal(t, 0, sup.manager.Size())
}
