package station

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusTestEngine(v OcppVersion) *Engine {
	st := &Station{
		OcppVersion: v,
		Connectors:  map[int]*Connector{1: {Id: 1, Status: "Available"}},
	}
	return &Engine{Station: st, log: zerolog.Nop()}
}

func TestSetConnectorStatusRejectsInvalidV16Status(t *testing.T) {
	e := newStatusTestEngine(OcppVersion16)
	err := e.SetConnectorStatus(1, "NotARealStatus", "NoError")
	require.Error(t, err)
}

func TestSetConnectorStatusRejectsInvalidV201Status(t *testing.T) {
	e := newStatusTestEngine(OcppVersion201)
	err := e.SetConnectorStatus(1, "Preparing", "NoError")
	require.Error(t, err)
}

func TestSetConnectorStatusRejectsUnknownConnector(t *testing.T) {
	e := newStatusTestEngine(OcppVersion16)
	err := e.SetConnectorStatus(99, "Available", "NoError")
	require.Error(t, err)
}

func TestSetConnectorStatusAppliesWhenDisconnected(t *testing.T) {
	e := newStatusTestEngine(OcppVersion16)
	err := e.SetConnectorStatus(1, "Charging", "NoError")
	require.NoError(t, err)

	c, _ := e.Station.ConnectorByID(1)
	assert.Equal(t, "Charging", c.Status)
	assert.NotNil(t, c.meterStopCh)
}
