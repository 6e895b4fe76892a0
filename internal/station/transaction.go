package station

import (
	"encoding/json"
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// StartTransaction implements spec.md §4.1's client-side start: guard the
// registration and connector state, optionally Authorize first, send
// StartTransaction, and on Accepted wire up the transaction fields, the
// Transaction.Begin meter value, the Charging status transition, and
// power-sharing/reservation bookkeeping. OCPP 2.0.1's equivalent rides
// TransactionEvent, out of scope here; callers on a 2.0.1 station get
// ocpperror.State.
func (e *Engine) StartTransaction(connectorId int, idTag string, beginEndMeterValues, authorizeRemoteTxRequests, powerSharedByConnectors bool) error {
	if e.Station.OcppVersion != OcppVersion16 {
		return ocpperror.State("StartTransaction is only implemented for OCPP 1.6")
	}
	if !e.Station.IsAccepted() {
		return ocpperror.State("station is not Accepted")
	}

	c, ok := e.Station.ConnectorByID(connectorId)
	if !ok {
		return ocpperror.State("unknown connector")
	}

	e.Station.mu.RLock()
	status := c.Status
	alreadyRunning := c.TransactionStarted
	locallyAuthorized := c.IdTagAuthorized && c.AuthorizeIdTag == idTag
	e.Station.mu.RUnlock()

	if alreadyRunning {
		return ocpperror.State("connector already has a running transaction")
	}
	if status != string(v16.StatusAvailable) && status != string(v16.StatusPreparing) {
		return ocpperror.State("connector must be Available or Preparing to start a transaction")
	}

	if authorizeRemoteTxRequests && !locallyAuthorized {
		accepted, err := e.Authorize(idTag)
		if err != nil {
			return err
		}
		if !accepted {
			return ocpperror.State("Authorize rejected id tag " + idTag)
		}
	}

	e.Station.mu.RLock()
	meterStart := int(c.EnergyActiveImportRegisterValue)
	e.Station.mu.RUnlock()

	req := v16.StartTransactionRequest{
		ConnectorId: connectorId,
		IdTag:       idTag,
		MeterStart:  meterStart,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if c.Reservation != nil {
		req.ReservationId = c.Reservation.Id
	}

	raw, err := e.SendCall(v16.ActionStartTransaction, req)
	if err != nil {
		return err
	}

	var resp v16.StartTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ocpperror.Protocol("failed to parse StartTransaction response", err)
	}
	if resp.IdTagInfo.Status != v16.AuthorizationAccepted {
		return ocpperror.State("StartTransaction rejected: " + string(resp.IdTagInfo.Status))
	}

	e.Station.mu.Lock()
	c.TransactionStarted = true
	c.TransactionId = resp.TransactionId
	c.TransactionIdTag = idTag
	c.TransactionStart = time.Now().UTC()
	c.TransactionEnergyActiveImportRegisterValue = 0
	reservation := c.Reservation
	c.Reservation = nil
	e.Station.mu.Unlock()

	if reservation != nil {
		reason := v16.ReservationTerminationReason(true, false, false)
		e.log.Info().Int("reservationId", reservation.Id).Str("reason", reason).Msg("reservation consumed by transaction")
		if reservation.IdTag != idTag {
			e.log.Warn().Str("reservationIdTag", reservation.IdTag).Str("idTag", idTag).Msg("id tag mismatch consuming reservation")
		}
		if time.Now().After(reservation.ExpiryDate) {
			e.log.Warn().Int("reservationId", reservation.Id).Msg("reservation expired before consumption")
		}
	}

	if beginEndMeterValues {
		entry := e.buildMeterValue(c)
		for i := range entry.SampledValue {
			entry.SampledValue[i].Context = "Transaction.Begin"
		}
		req := v16.MeterValuesRequest{ConnectorId: connectorId, TransactionId: resp.TransactionId, MeterValue: []v16.MeterValueEntry{entry}}
		if _, err := e.SendCall(v16.ActionMeterValues, req); err != nil {
			e.log.Warn().Err(err).Msg("Transaction.Begin MeterValues failed")
		}
	}

	if err := e.SetConnectorStatus(connectorId, string(v16.StatusCharging), "NoError"); err != nil {
		e.log.Warn().Err(err).Msg("failed to transition connector to Charging")
	}

	if powerSharedByConnectors {
		e.Station.mu.Lock()
		e.Station.PowerDivider++
		e.Station.mu.Unlock()
	}

	return nil
}

// Authorize sends an Authorize request and records the local cache entry.
func (e *Engine) Authorize(idTag string) (bool, error) {
	raw, err := e.SendCall(v16.ActionAuthorize, v16.AuthorizeRequest{IdTag: idTag})
	if err != nil {
		return false, err
	}
	var resp v16.AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return false, ocpperror.Protocol("failed to parse Authorize response", err)
	}

	accepted := resp.IdTagInfo.Status == v16.AuthorizationAccepted
	if accepted {
		if c, ok := e.Station.ConnectorByID(0); ok {
			e.Station.mu.Lock()
			c.AuthorizeIdTag = idTag
			c.IdTagAuthorized = true
			e.Station.mu.Unlock()
		}
	}
	return accepted, nil
}

// StopTransaction implements spec.md §4.1's client-side stop: optionally
// pre-emit the Transaction.End meter value, send StopTransaction, then
// reset connector state and power-sharing bookkeeping.
func (e *Engine) StopTransaction(connectorId int, reason string, beginEndMeterValues, strictCompliance, outOfOrderEndMeterValues, powerSharedByConnectors bool) error {
	if e.Station.OcppVersion != OcppVersion16 {
		return ocpperror.State("StopTransaction is only implemented for OCPP 1.6")
	}

	c, ok := e.Station.ConnectorByID(connectorId)
	if !ok {
		return ocpperror.State("unknown connector")
	}

	e.Station.mu.RLock()
	running := c.TransactionStarted
	transactionId := c.TransactionId
	idTag := c.TransactionIdTag
	e.Station.mu.RUnlock()

	if !running {
		return ocpperror.State("connector has no running transaction")
	}

	if beginEndMeterValues && strictCompliance && !outOfOrderEndMeterValues {
		entry := e.buildMeterValue(c)
		for i := range entry.SampledValue {
			entry.SampledValue[i].Context = "Transaction.End"
		}
		req := v16.MeterValuesRequest{ConnectorId: connectorId, TransactionId: transactionId, MeterValue: []v16.MeterValueEntry{entry}}
		if _, err := e.SendCall(v16.ActionMeterValues, req); err != nil {
			e.log.Warn().Err(err).Msg("Transaction.End MeterValues failed")
		}
	}

	e.Station.mu.RLock()
	meterStop := int(c.EnergyActiveImportRegisterValue)
	e.Station.mu.RUnlock()

	req := v16.StopTransactionRequest{
		IdTag:         idTag,
		MeterStop:     meterStop,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		TransactionId: transactionId,
		Reason:        reason,
	}

	if _, err := e.SendCall(v16.ActionStopTransaction, req); err != nil {
		return err
	}

	e.Station.mu.Lock()
	availability := c.Availability
	c.TransactionStarted = false
	c.TransactionId = 0
	c.TransactionIdTag = ""
	c.TransactionEnergyActiveImportRegisterValue = 0
	e.Station.mu.Unlock()

	nextStatus := string(v16.StatusAvailable)
	if availability == AvailabilityInoperative {
		nextStatus = string(v16.StatusUnavailable)
	}
	if err := e.SetConnectorStatus(connectorId, nextStatus, "NoError"); err != nil {
		e.log.Warn().Err(err).Msg("failed to transition connector after stop")
	}

	if powerSharedByConnectors {
		e.Station.mu.Lock()
		if e.Station.PowerDivider > 1 {
			e.Station.PowerDivider--
		}
		e.Station.mu.Unlock()
	}

	return nil
}
