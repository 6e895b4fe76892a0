package station

import (
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/atg"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// atgConnector adapts one Engine connector to atg.Connector, translating
// business-level rejections (ocpperror.State) into accepted=false rather
// than an error, while letting infrastructure failures (timeout, transport,
// protocol) propagate as err so the loop can log and back off.
type atgConnector struct {
	engine      *Engine
	connectorId int

	beginEndMeterValues     bool
	authorizeRemoteTx       bool
	powerSharedByConnectors bool
	strictCompliance        bool
}

// NewATGConnector builds the adapter an atg.Loop drives for one connector.
func NewATGConnector(e *Engine, connectorId int, beginEndMeterValues, authorizeRemoteTx, powerSharedByConnectors bool) atg.Connector {
	return &atgConnector{
		engine:                  e,
		connectorId:             connectorId,
		beginEndMeterValues:     beginEndMeterValues,
		authorizeRemoteTx:       authorizeRemoteTx,
		powerSharedByConnectors: powerSharedByConnectors,
		strictCompliance:        e.strictCompliance,
	}
}

func (a *atgConnector) Authorize(idTag string) (bool, error) {
	return a.engine.Authorize(idTag)
}

func (a *atgConnector) StartTransaction(idTag string) (bool, error) {
	err := a.engine.StartTransaction(a.connectorId, idTag, a.beginEndMeterValues, a.authorizeRemoteTx, a.powerSharedByConnectors)
	if err == nil {
		return true, nil
	}
	if isBusinessRejection(err) {
		return false, nil
	}
	return false, err
}

func (a *atgConnector) StopTransaction(reason string) error {
	return a.engine.StopTransaction(a.connectorId, reason, a.beginEndMeterValues, a.strictCompliance, false, a.powerSharedByConnectors)
}

func (a *atgConnector) Guard() bool {
	if !a.engine.Station.IsAccepted() {
		return false
	}
	c, ok := a.engine.Station.ConnectorByID(a.connectorId)
	if !ok {
		return false
	}
	a.engine.Station.mu.RLock()
	defer a.engine.Station.mu.RUnlock()
	return c.Availability != AvailabilityInoperative && c.Status != string(v16.StatusUnavailable)
}

func isBusinessRejection(err error) bool {
	ocppErr, ok := err.(*ocpperror.Error)
	return ok && ocppErr.Kind == ocpperror.KindState
}
