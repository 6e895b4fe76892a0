package station

import (
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

var validStatusV16 = map[string]bool{
	string(v16.StatusAvailable):     true,
	string(v16.StatusPreparing):     true,
	string(v16.StatusCharging):      true,
	string(v16.StatusSuspendedEVSE): true,
	string(v16.StatusSuspendedEV):   true,
	string(v16.StatusFinishing):     true,
	string(v16.StatusReserved):      true,
	string(v16.StatusUnavailable):   true,
	string(v16.StatusFaulted):       true,
}

var validStatusV201 = map[string]bool{
	string(v201.ConnectorStatusAvailable):   true,
	string(v201.ConnectorStatusOccupied):    true,
	string(v201.ConnectorStatusReserved):    true,
	string(v201.ConnectorStatusUnavailable): true,
	string(v201.ConnectorStatusFaulted):     true,
}

// SetConnectorStatus validates and applies a new status for connectorId,
// sending StatusNotification if the engine is connected, and starting or
// stopping the meter values loop around the Charging transition.
func (e *Engine) SetConnectorStatus(connectorId int, status, errorCode string) error {
	if e.Station.OcppVersion == OcppVersion16 {
		if !validStatusV16[status] {
			return ocpperror.State("invalid status for OCPP 1.6: " + status)
		}
	} else {
		if !validStatusV201[status] {
			return ocpperror.State("invalid status for OCPP 2.0.1: " + status)
		}
	}

	c, ok := e.Station.ConnectorByID(connectorId)
	if !ok {
		return ocpperror.State("unknown connector")
	}

	e.Station.mu.Lock()
	oldStatus := c.Status
	c.Status = status
	c.ErrorCode = errorCode
	shouldStart := status == string(v16.StatusCharging) && oldStatus != string(v16.StatusCharging) && c.meterStopCh == nil
	shouldStop := status != string(v16.StatusCharging) && oldStatus == string(v16.StatusCharging) && c.meterStopCh != nil
	e.Station.mu.Unlock()

	if shouldStart {
		e.startMeterValuesLoop(c)
	} else if shouldStop {
		e.stopMeterValuesLoop(c)
	}

	if !e.IsConnected() {
		return nil
	}
	return e.SendStatusNotification(connectorId, status, errorCode)
}

// SendStatusNotification emits StatusNotification for one connector without
// touching locally-recorded status (used at boot and for error reporting).
func (e *Engine) SendStatusNotification(connectorId int, status, errorCode string) error {
	if e.Station.OcppVersion == OcppVersion16 {
		req := v16.StatusNotificationRequest{
			ConnectorId: connectorId,
			ErrorCode:   errorCode,
			Status:      v16.ChargePointStatus(status),
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}
		_, err := e.SendCall(v16.ActionStatusNotification, req)
		return err
	}

	req := v201.StatusNotificationRequest{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		ConnectorStatus: v201.ConnectorStatus(status),
		EvseId:          connectorId,
		ConnectorId:     1,
	}
	_, err := e.SendCall(v201.ActionStatusNotification, req)
	return err
}

// SendFirmwareStatusNotification reports a firmware install phase and
// records it on the station for the next boot-time echo (spec.md §4.1).
func (e *Engine) SendFirmwareStatusNotification(status string) error {
	e.Station.mu.Lock()
	e.Station.FirmwareStatus = status
	e.Station.mu.Unlock()

	req := v16.FirmwareStatusNotificationRequest{Status: status}
	_, err := e.SendCall(v16.ActionFirmwareStatusNotification, req)
	return err
}
