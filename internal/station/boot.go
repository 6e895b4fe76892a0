package station

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocppconfig"
)

const defaultBootRetryInterval = 10 * time.Second

// runBootSequence sends BootNotification in a retry loop bounded by
// registrationMaxRetries (-1 infinite, 0 no retry), then, once Accepted,
// performs the rest of spec.md §4.1's "Boot sequence (on open)".
func (e *Engine) runBootSequence() error {
	attempt := 0
	for {
		status, interval, err := e.bootNotification()
		if err == nil && status == "Accepted" {
			return e.onAccepted(interval)
		}

		attempt++
		if e.registrationMaxRetries == 0 {
			return nil
		}
		if e.registrationMaxRetries > 0 && attempt > e.registrationMaxRetries {
			return nil
		}

		wait := defaultBootRetryInterval
		if interval > 0 {
			wait = time.Duration(interval) * time.Second
		}
		time.Sleep(wait)
	}
}

func (e *Engine) bootNotification() (status string, interval int, err error) {
	if e.Station.OcppVersion == OcppVersion16 {
		return e.bootNotificationV16()
	}
	return e.bootNotificationV201()
}

func (e *Engine) bootNotificationV16() (string, int, error) {
	req := v16.BootNotificationRequest{
		ChargePointVendor: "OCPP Fleet Simulator",
		ChargePointModel:  e.Station.ChargingStationId,
		FirmwareVersion:   "1.0.0",
	}

	raw, err := e.SendCall(v16.ActionBootNotification, req)
	if err != nil {
		return "", 0, err
	}

	var resp v16.BootNotificationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", 0, err
	}
	e.recordBootResponse(string(resp.Status), resp.CurrentTime, resp.Interval)
	return string(resp.Status), resp.Interval, nil
}

func (e *Engine) bootNotificationV201() (string, int, error) {
	req := v201.BootNotificationRequest{
		Reason: v201.BootReasonPowerUp,
		ChargingStation: v201.ChargingStation{
			VendorName:      "OCPP Fleet Simulator",
			Model:           e.Station.ChargingStationId,
			FirmwareVersion: "2.0.1",
		},
	}

	raw, err := e.SendCall(v201.ActionBootNotification, req)
	if err != nil {
		return "", 0, err
	}

	var resp v201.BootNotificationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", 0, err
	}
	e.recordBootResponse(string(resp.Status), resp.CurrentTime, resp.Interval)
	return string(resp.Status), resp.Interval, nil
}

func (e *Engine) recordBootResponse(status, currentTime string, interval int) {
	e.mu.Lock()
	e.Station.BootNotificationResponse = &BootNotificationResponse{
		Status:      status,
		CurrentTime: currentTime,
		Interval:    interval,
	}
	e.mu.Unlock()
}

// onAccepted runs the rest of spec.md §4.1's boot sequence once the
// registration handshake succeeds: store HeartbeatInterval, start the
// heartbeat timer, emit per-connector StatusNotification, echo
// FirmwareStatusNotification if an install was in progress, and start the
// attached ATG loops. No WebSocket ping timer is started.
func (e *Engine) onAccepted(interval int) error {
	if interval <= 0 {
		interval = 30
	}
	e.Station.mu.Lock()
	e.Station.HeartbeatInterval = interval
	e.Station.ConfigurationKeys.SetHeartbeatInterval(interval)
	e.Station.mu.Unlock()

	e.startHeartbeatLoop(interval)

	for _, c := range e.Station.AllConnectors() {
		status := bootConnectorStatus(e.Station.OcppVersion)
		if err := e.SendStatusNotification(c.Id, status, "NoError"); err != nil {
			e.log.Warn().Err(err).Int("connectorId", c.Id).Msg("initial StatusNotification failed")
		}
	}

	e.Station.mu.RLock()
	firmwareStatus := e.Station.FirmwareStatus
	e.Station.mu.RUnlock()
	if firmwareStatus == v16.FirmwareStatusInstalling {
		_ = e.SendFirmwareStatusNotification(v16.FirmwareStatusInstalled)
	}

	e.StartATG(nil)

	return nil
}

// bootConnectorStatus is the status emitted at boot for each connector:
// always Available; the station template cannot override it.
func bootConnectorStatus(v OcppVersion) string {
	if v == OcppVersion16 {
		return string(v16.StatusAvailable)
	}
	return string(v201.ConnectorStatusAvailable)
}

// installDefaultKeys installs the default OCPP configuration keys if
// absent (spec.md §3 Initialization step 5).
func installDefaultKeys(keys *ocppconfig.Store, numberOfConnectors int, localAuthListSupported bool) {
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeyHeartbeatInterval, Value: "0", Readonly: true, Visible: true}, false)
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeyHeartBeatIntervalAlias, Value: "0", Readonly: true}, false)
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeySupportedFeatureProfiles, Value: "Core,FirmwareManagement,RemoteTrigger,Reservation,SmartCharging", Readonly: true, Visible: true}, false)
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeyNumberOfConnectors, Value: strconv.Itoa(numberOfConnectors), Readonly: true, Visible: true}, false)
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeyMeterValuesSampledData, Value: "Energy.Active.Import.Register", Visible: true}, false)
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeyConnectorPhaseRotation, Value: "", Visible: true}, false)
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeyAuthorizeRemoteTxRequests, Value: "true", Visible: true}, false)
	keys.Set(ocppconfig.Key{Key: ocppconfig.KeyConnectionTimeOut, Value: "60", Visible: true}, false)
	if localAuthListSupported {
		keys.Set(ocppconfig.Key{Key: ocppconfig.KeyLocalAuthListEnabled, Value: "false", Visible: true}, false)
	}
}
