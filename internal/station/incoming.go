package station

import (
	"encoding/json"
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// RegisterHandlers wires every server-initiated action this station
// accepts into its dispatcher. Start calls it before opening the connection.
func (e *Engine) RegisterHandlers() {
	if e.Station.OcppVersion != OcppVersion16 {
		e.registerHandlersV201()
		return
	}
	d := e.dispatcher()
	d.Handle(v16.ActionReset, e.handleReset)
	d.Handle(v16.ActionClearCache, e.handleClearCache)
	d.Handle(v16.ActionChangeAvailability, e.handleChangeAvailability)
	d.Handle(v16.ActionUnlockConnector, e.handleUnlockConnector)
	d.Handle(v16.ActionGetConfiguration, e.handleGetConfiguration)
	d.Handle(v16.ActionChangeConfiguration, e.handleChangeConfiguration)
	d.Handle(v16.ActionGetCompositeSchedule, e.handleGetCompositeSchedule)
	d.Handle(v16.ActionSetChargingProfile, e.handleSetChargingProfile)
	d.Handle(v16.ActionClearChargingProfile, e.handleClearChargingProfile)
	d.Handle(v16.ActionRemoteStartTransaction, e.handleRemoteStartTransaction)
	d.Handle(v16.ActionRemoteStopTransaction, e.handleRemoteStopTransaction)
	d.Handle(v16.ActionGetDiagnostics, e.handleGetDiagnostics)
	d.Handle(v16.ActionTriggerMessage, e.handleTriggerMessage)
	d.Handle(v16.ActionUpdateFirmware, e.handleUpdateFirmware)
	d.Handle(v16.ActionReserveNow, e.handleReserveNow)
	d.Handle(v16.ActionCancelReservation, e.handleCancelReservation)
	d.Handle(v16.ActionDataTransfer, e.HandleDataTransfer)
}

func (e *Engine) handleReset(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.ResetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed Reset", err)
	}
	go func() {
		time.Sleep(time.Second)
		e.Stop()
	}()
	return v16.ResetResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleClearCache(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	for _, c := range e.Station.AllConnectors() {
		e.Station.mu.Lock()
		c.IdTagAuthorized = false
		c.AuthorizeIdTag = ""
		e.Station.mu.Unlock()
	}
	return v16.ClearCacheResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleChangeAvailability(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.ChangeAvailabilityRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed ChangeAvailability", err)
	}

	avail := AvailabilityOperative
	if req.Type == "Inoperative" {
		avail = AvailabilityInoperative
	}

	targets := e.Station.AllConnectors()
	if req.ConnectorId != 0 {
		c, ok := e.Station.ConnectorByID(req.ConnectorId)
		if !ok {
			return v16.ChangeAvailabilityResponse{Status: "Rejected"}, nil
		}
		targets = []*Connector{c}
	}

	status := "Accepted"
	for _, c := range targets {
		e.Station.mu.Lock()
		busy := c.TransactionStarted
		if !busy {
			c.Availability = avail
		}
		e.Station.mu.Unlock()
		if busy {
			status = "Scheduled"
			continue
		}
		newStatus := string(v16.StatusAvailable)
		if avail == AvailabilityInoperative {
			newStatus = string(v16.StatusUnavailable)
		}
		_ = e.SetConnectorStatus(c.Id, newStatus, "NoError")
	}

	return v16.ChangeAvailabilityResponse{Status: status}, nil
}

func (e *Engine) handleUnlockConnector(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.UnlockConnectorRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed UnlockConnector", err)
	}
	if _, ok := e.Station.ConnectorByID(req.ConnectorId); !ok {
		return v16.UnlockConnectorResponse{Status: "NotSupported"}, nil
	}
	return v16.UnlockConnectorResponse{Status: "Unlocked"}, nil
}

func (e *Engine) handleGetConfiguration(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.GetConfigurationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed GetConfiguration", err)
	}

	var entries []v16.ConfigurationKey
	var unknown []string

	if len(req.Key) == 0 {
		for _, k := range e.Station.ConfigurationKeys.All() {
			if !k.Visible {
				continue
			}
			entries = append(entries, v16.ConfigurationKey{Key: k.Key, Readonly: k.Readonly, Value: k.Value})
		}
	} else {
		found, miss := e.Station.ConfigurationKeys.Filter(req.Key)
		unknown = miss
		for _, k := range found {
			entries = append(entries, v16.ConfigurationKey{Key: k.Key, Readonly: k.Readonly, Value: k.Value})
		}
	}

	return v16.GetConfigurationResponse{ConfigurationKey: entries, UnknownKey: unknown}, nil
}

func (e *Engine) handleChangeConfiguration(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.ChangeConfigurationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed ChangeConfiguration", err)
	}

	existing, ok := e.Station.ConfigurationKeys.Get(req.Key)
	if ok && existing.Readonly {
		return v16.ChangeConfigurationResponse{Status: "Rejected"}, nil
	}

	e.Station.ConfigurationKeys.SetValue(req.Key, req.Value)
	return v16.ChangeConfigurationResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleGetCompositeSchedule(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.GetCompositeScheduleRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed GetCompositeSchedule", err)
	}
	if _, ok := e.Station.ConnectorByID(req.ConnectorId); !ok {
		return v16.GetCompositeScheduleResponse{Status: "Rejected"}, nil
	}
	return v16.GetCompositeScheduleResponse{Status: "Rejected"}, nil
}

func (e *Engine) handleSetChargingProfile(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.SetChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed SetChargingProfile", err)
	}

	c, ok := e.Station.ConnectorByID(req.ConnectorId)
	if !ok {
		return v16.SetChargingProfileResponse{Status: "Rejected"}, nil
	}

	e.Station.mu.Lock()
	c.ChargingProfiles = append(c.ChargingProfiles, ChargingProfile{
		ChargingProfileId: req.ChargingProfile.ChargingProfileId,
		StackLevel:        req.ChargingProfile.StackLevel,
		Purpose:           req.ChargingProfile.ChargingProfilePurpose,
		Raw:               req.ChargingProfile,
	})
	e.Station.mu.Unlock()

	return v16.SetChargingProfileResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleClearChargingProfile(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.ClearChargingProfileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed ClearChargingProfile", err)
	}

	cleared := false
	for _, c := range e.Station.AllConnectors() {
		if req.ConnectorId != 0 && c.Id != req.ConnectorId {
			continue
		}
		e.Station.mu.Lock()
		var kept []ChargingProfile
		for _, p := range c.ChargingProfiles {
			match := (req.Id == 0 || p.ChargingProfileId == req.Id) &&
				(req.ChargingProfilePurpose == "" || p.Purpose == req.ChargingProfilePurpose) &&
				(req.StackLevel == 0 || p.StackLevel == req.StackLevel)
			if match {
				cleared = true
				continue
			}
			kept = append(kept, p)
		}
		c.ChargingProfiles = kept
		e.Station.mu.Unlock()
	}

	if cleared {
		return v16.ClearChargingProfileResponse{Status: "Accepted"}, nil
	}
	return v16.ClearChargingProfileResponse{Status: "Unknown"}, nil
}

func (e *Engine) handleRemoteStartTransaction(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.RemoteStartTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed RemoteStartTransaction", err)
	}

	connectorId := req.ConnectorId
	c, ok := e.Station.ConnectorByID(connectorId)
	if !ok {
		return v16.RemoteStartTransactionResponse{Status: "Rejected"}, nil
	}

	e.Station.mu.RLock()
	status := c.Status
	e.Station.mu.RUnlock()

	if status != string(v16.StatusAvailable) && status != string(v16.StatusPreparing) {
		return v16.RemoteStartTransactionResponse{Status: "Rejected"}, nil
	}

	go func() {
		time.Sleep(time.Second)
		if err := e.StartTransaction(connectorId, req.IdTag, true, true, false); err != nil {
			e.log.Warn().Err(err).Msg("RemoteStartTransaction-triggered start failed")
		}
	}()

	return v16.RemoteStartTransactionResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleRemoteStopTransaction(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.RemoteStopTransactionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed RemoteStopTransaction", err)
	}

	var target *Connector
	for _, c := range e.Station.AllConnectors() {
		e.Station.mu.RLock()
		match := c.TransactionStarted && c.TransactionId == req.TransactionId
		e.Station.mu.RUnlock()
		if match {
			target = c
			break
		}
	}
	if target == nil {
		return v16.RemoteStopTransactionResponse{Status: "Rejected"}, nil
	}

	connectorId := target.Id
	go func() {
		time.Sleep(time.Second)
		if err := e.StopTransaction(connectorId, v16.ReasonRemote, true, e.strictCompliance, false, false); err != nil {
			e.log.Warn().Err(err).Msg("RemoteStopTransaction-triggered stop failed")
		}
	}()

	return v16.RemoteStopTransactionResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleGetDiagnostics(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	go func() {
		_, _ = e.SendCall(v16.ActionDiagnosticsStatusNotification, v16.DiagnosticsStatusNotificationRequest{Status: v16.DiagnosticsStatusUploaded})
	}()
	return v16.GetDiagnosticsResponse{FileName: e.Station.ChargingStationId + "-diagnostics.zip"}, nil
}

func (e *Engine) handleTriggerMessage(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.TriggerMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed TriggerMessage", err)
	}

	go e.replayMessage(req.RequestedMessage, req.ConnectorId)

	return v16.TriggerMessageResponse{Status: "Accepted"}, nil
}

func (e *Engine) replayMessage(requested string, connectorId int) {
	switch requested {
	case "BootNotification":
		_, _, _ = e.bootNotification()
	case "Heartbeat":
		_, _ = e.sendHeartbeat()
	case "StatusNotification":
		for _, c := range e.Station.AllConnectors() {
			if connectorId != 0 && c.Id != connectorId {
				continue
			}
			_ = e.SendStatusNotification(c.Id, c.Status, c.ErrorCode)
		}
	case "MeterValues":
		for _, c := range e.Station.AllConnectors() {
			if connectorId != 0 && c.Id != connectorId {
				continue
			}
			_ = e.sendMeterValues(c)
		}
	}
}

func (e *Engine) handleUpdateFirmware(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	go func() {
		_ = e.SendFirmwareStatusNotification(v16.FirmwareStatusDownloading)
		time.Sleep(2 * time.Second)
		_ = e.SendFirmwareStatusNotification(v16.FirmwareStatusDownloaded)
		_ = e.SendFirmwareStatusNotification(v16.FirmwareStatusInstalling)
	}()
	return v16.UpdateFirmwareResponse{}, nil
}

func (e *Engine) handleReserveNow(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.ReserveNowRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed ReserveNow", err)
	}

	c, ok := e.Station.ConnectorByID(req.ConnectorId)
	if !ok {
		return v16.ReserveNowResponse{Status: "Rejected"}, nil
	}

	e.Station.mu.RLock()
	status := c.Status
	busy := c.TransactionStarted
	e.Station.mu.RUnlock()

	if busy {
		return v16.ReserveNowResponse{Status: "Occupied"}, nil
	}
	if status == string(v16.StatusFaulted) {
		return v16.ReserveNowResponse{Status: "Faulted"}, nil
	}
	if status == string(v16.StatusUnavailable) {
		return v16.ReserveNowResponse{Status: "Unavailable"}, nil
	}

	expiry, err := time.Parse(time.RFC3339, req.ExpiryDate)
	if err != nil {
		return nil, ocpperror.Protocol("malformed expiryDate", err)
	}

	e.Station.mu.Lock()
	if c.Reservation != nil {
		reason := v16.ReservationTerminationReason(false, false, false)
		e.log.Info().Int("connectorId", req.ConnectorId).Int("reservationId", c.Reservation.Id).Str("reason", reason).Msg("reservation replaced by new ReserveNow")
	}
	c.Reservation = &Reservation{
		Id:          req.ReservationId,
		ConnectorId: req.ConnectorId,
		IdTag:       req.IdTag,
		ParentIdTag: req.ParentIdTag,
		ExpiryDate:  expiry,
	}
	e.Station.mu.Unlock()

	_ = e.SetConnectorStatus(req.ConnectorId, string(v16.StatusReserved), "NoError")

	go e.expireReservation(req.ConnectorId, req.ReservationId, expiry)

	return v16.ReserveNowResponse{Status: "Accepted"}, nil
}

// expireReservation clears a reservation once its expiry passes, unless it
// was already consumed or cancelled first.
func (e *Engine) expireReservation(connectorId, reservationId int, expiry time.Time) {
	wait := time.Until(expiry)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	<-timer.C

	c, ok := e.Station.ConnectorByID(connectorId)
	if !ok {
		return
	}

	e.Station.mu.Lock()
	stillPending := c.Reservation != nil && c.Reservation.Id == reservationId
	if stillPending {
		c.Reservation = nil
	}
	e.Station.mu.Unlock()

	if stillPending {
		reason := v16.ReservationTerminationReason(false, false, true)
		e.log.Info().Int("connectorId", connectorId).Int("reservationId", reservationId).Str("reason", reason).Msg("reservation expired")
		_ = e.SetConnectorStatus(connectorId, string(v16.StatusAvailable), "NoError")
	}
}

func (e *Engine) handleCancelReservation(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v16.CancelReservationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed CancelReservation", err)
	}

	for _, c := range e.Station.AllConnectors() {
		e.Station.mu.Lock()
		if c.Reservation != nil && c.Reservation.Id == req.ReservationId {
			c.Reservation = nil
			e.Station.mu.Unlock()
			reason := v16.ReservationTerminationReason(false, true, false)
			e.log.Info().Int("connectorId", c.Id).Int("reservationId", req.ReservationId).Str("reason", reason).Msg("reservation cancelled")
			_ = e.SetConnectorStatus(c.Id, string(v16.StatusAvailable), "NoError")
			return v16.CancelReservationResponse{Status: "Accepted"}, nil
		}
		e.Station.mu.Unlock()
	}

	return v16.CancelReservationResponse{Status: "Rejected"}, nil
}

// registerHandlersV201 wires the narrower 2.0.1 incoming set: enough to
// dispatch and acknowledge, without the full 1.6 state machine (spec.md's
// 2.0 coverage is limited to boot/heartbeat/status plus these placeholders).
func (e *Engine) registerHandlersV201() {
	d := e.dispatcher()
	d.Handle(v201.ActionReset, e.handleResetV201)
	d.Handle(v201.ActionChangeAvailability, e.handleChangeAvailabilityV201)
	d.Handle(v201.ActionTriggerMessage, e.handleTriggerMessageV201)
}

func (e *Engine) handleResetV201(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v201.ResetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed Reset", err)
	}
	go func() {
		time.Sleep(time.Second)
		e.Stop()
	}()
	return v201.ResetResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleChangeAvailabilityV201(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v201.ChangeAvailabilityRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed ChangeAvailability", err)
	}

	avail := AvailabilityOperative
	if req.OperationalStatus == "Inoperative" {
		avail = AvailabilityInoperative
	}

	targets := e.Station.AllConnectors()
	if req.Evse != nil && req.Evse.ConnectorId != 0 {
		c, ok := e.Station.ConnectorByID(req.Evse.ConnectorId)
		if !ok {
			return v201.ChangeAvailabilityResponse{Status: "Rejected"}, nil
		}
		targets = []*Connector{c}
	}

	for _, c := range targets {
		e.Station.mu.Lock()
		c.Availability = avail
		e.Station.mu.Unlock()
		newStatus := string(v201.ConnectorStatusAvailable)
		if avail == AvailabilityInoperative {
			newStatus = string(v201.ConnectorStatusUnavailable)
		}
		_ = e.SetConnectorStatus(c.Id, newStatus, "NoError")
	}

	return v201.ChangeAvailabilityResponse{Status: "Accepted"}, nil
}

func (e *Engine) handleTriggerMessageV201(payload json.RawMessage) (interface{}, *ocpperror.Error) {
	var req v201.TriggerMessageRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpperror.Protocol("malformed TriggerMessage", err)
	}

	connectorId := 0
	if req.Evse != nil {
		connectorId = req.Evse.ConnectorId
	}
	go e.replayMessageV201(req.RequestedMessage, connectorId)

	return v201.TriggerMessageResponse{Status: "Accepted"}, nil
}

func (e *Engine) replayMessageV201(requested string, connectorId int) {
	switch requested {
	case "BootNotification":
		_, _, _ = e.bootNotification()
	case "Heartbeat":
		_, _ = e.sendHeartbeat()
	case "StatusNotification":
		for _, c := range e.Station.AllConnectors() {
			if connectorId != 0 && c.Id != connectorId {
				continue
			}
			_ = e.SendStatusNotification(c.Id, c.Status, c.ErrorCode)
		}
	}
}
