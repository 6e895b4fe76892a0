package station

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocppconfig"
)

func TestInstallDefaultKeysSetsCoreKeys(t *testing.T) {
	keys := ocppconfig.New(true)
	installDefaultKeys(keys, 2, false)

	v, ok := keys.GetValue(ocppconfig.KeyNumberOfConnectors)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = keys.GetValue(ocppconfig.KeyLocalAuthListEnabled)
	assert.False(t, ok)
}

func TestInstallDefaultKeysIncludesLocalAuthListWhenSupported(t *testing.T) {
	keys := ocppconfig.New(true)
	installDefaultKeys(keys, 1, true)

	v, ok := keys.GetValue(ocppconfig.KeyLocalAuthListEnabled)
	assert.True(t, ok)
	assert.Equal(t, "false", v)
}

func TestBootConnectorStatusDefaultsToAvailable(t *testing.T) {
	assert.Equal(t, "Available", bootConnectorStatus(OcppVersion16))
	assert.Equal(t, "Available", bootConnectorStatus(OcppVersion201))
}
