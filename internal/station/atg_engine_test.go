package station

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/atg"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/idtag"
)

func newTestEngine() *Engine {
	st := &Station{
		HashId:            "hash-1",
		ChargingStationId: "station-1",
		OcppVersion:       OcppVersion16,
		Connectors:        map[int]*Connector{1: {Id: 1, Availability: AvailabilityOperative, Status: "Available"}},
	}
	return &Engine{Station: st, log: zerolog.Nop()}
}

func TestAttachATGLoopRegistersByConnector(t *testing.T) {
	e := newTestEngine()
	idTags := idtag.New([]string{"TAG-1"}, idtag.PolicyRandom, 1)
	loop := atg.New(1, atg.Config{}, NewATGConnector(e, 1, true, true, false), idTags, 0, zerolog.Nop())

	e.AttachATGLoop(1, loop)

	assert.Len(t, e.selectATGLoops(nil), 1)
	assert.Len(t, e.selectATGLoops([]int{1}), 1)
	assert.Len(t, e.selectATGLoops([]int{2}), 0)
}

func TestStartStopATGIsIdempotentWithNoLoops(t *testing.T) {
	e := newTestEngine()
	assert.NotPanics(t, func() {
		e.StartATG(nil)
		e.StopATG(nil)
	})
}

func TestStartStopATGForSelectedConnectorReturns(t *testing.T) {
	e := newTestEngine()
	idTags := idtag.New([]string{"TAG-1"}, idtag.PolicyRandom, 1)

	cfg := atg.Config{StopAfterHours: 0.0001, MinDelayBetweenTwoTransactions: 100, MaxDelayBetweenTwoTransactions: 100}
	loop1 := atg.New(1, cfg, NewATGConnector(e, 1, true, true, false), idTags, 0, zerolog.Nop())
	e.AttachATGLoop(1, loop1)

	e.StartATG([]int{1})
	time.Sleep(10 * time.Millisecond)
	e.StopATG([]int{1})
}
