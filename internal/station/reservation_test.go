package station

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
)

func marshalPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHandleReserveNowAcceptsAvailableConnector(t *testing.T) {
	e := newTestEngine()
	req := v16.ReserveNowRequest{
		ConnectorId:   1,
		ExpiryDate:    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		IdTag:         "TAG-1",
		ReservationId: 42,
	}

	resp, ocppErr := e.handleReserveNow(marshalPayload(t, req))

	require.Nil(t, ocppErr)
	assert.Equal(t, v16.ReserveNowResponse{Status: "Accepted"}, resp)

	c, _ := e.Station.ConnectorByID(1)
	require.NotNil(t, c.Reservation)
	assert.Equal(t, 42, c.Reservation.Id)
	assert.Equal(t, string(v16.StatusReserved), c.Status)
}

func TestHandleReserveNowRejectsOccupiedConnector(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Station.ConnectorByID(1)
	c.TransactionStarted = true

	req := v16.ReserveNowRequest{
		ConnectorId:   1,
		ExpiryDate:    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		IdTag:         "TAG-1",
		ReservationId: 1,
	}

	resp, ocppErr := e.handleReserveNow(marshalPayload(t, req))

	require.Nil(t, ocppErr)
	assert.Equal(t, v16.ReserveNowResponse{Status: "Occupied"}, resp)
	assert.Nil(t, c.Reservation)
}

func TestHandleReserveNowReplacesPendingReservation(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Station.ConnectorByID(1)
	c.Reservation = &Reservation{Id: 1, ConnectorId: 1, IdTag: "TAG-OLD", ExpiryDate: time.Now().Add(time.Hour)}

	req := v16.ReserveNowRequest{
		ConnectorId:   1,
		ExpiryDate:    time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339),
		IdTag:         "TAG-NEW",
		ReservationId: 2,
	}

	resp, ocppErr := e.handleReserveNow(marshalPayload(t, req))

	require.Nil(t, ocppErr)
	assert.Equal(t, v16.ReserveNowResponse{Status: "Accepted"}, resp)
	assert.Equal(t, 2, c.Reservation.Id)
	assert.Equal(t, "TAG-NEW", c.Reservation.IdTag)
}

func TestHandleCancelReservationRoundTrip(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Station.ConnectorByID(1)
	before := *c

	c.Reservation = &Reservation{Id: 7, ConnectorId: 1, IdTag: "TAG-1", ExpiryDate: time.Now().Add(time.Hour)}
	assert.NotNil(t, c.Reservation)

	resp, ocppErr := e.handleCancelReservation(marshalPayload(t, v16.CancelReservationRequest{ReservationId: 7}))

	require.Nil(t, ocppErr)
	assert.Equal(t, v16.CancelReservationResponse{Status: "Accepted"}, resp)
	assert.Nil(t, c.Reservation)
	assert.Equal(t, string(v16.StatusAvailable), c.Status)
	assert.Equal(t, before.Reservation, c.Reservation)
}

func TestHandleCancelReservationRejectsUnknownId(t *testing.T) {
	e := newTestEngine()

	resp, ocppErr := e.handleCancelReservation(marshalPayload(t, v16.CancelReservationRequest{ReservationId: 999}))

	require.Nil(t, ocppErr)
	assert.Equal(t, v16.CancelReservationResponse{Status: "Rejected"}, resp)
}

func TestExpireReservationClearsStillPendingReservation(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Station.ConnectorByID(1)
	c.Reservation = &Reservation{Id: 3, ConnectorId: 1, IdTag: "TAG-1", ExpiryDate: time.Now()}
	c.Status = string(v16.StatusReserved)

	e.expireReservation(1, 3, time.Now())

	assert.Nil(t, c.Reservation)
	assert.Equal(t, string(v16.StatusAvailable), c.Status)
}

func TestExpireReservationLeavesConsumedReservationAlone(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Station.ConnectorByID(1)
	c.Reservation = &Reservation{Id: 5, ConnectorId: 1, IdTag: "TAG-1", ExpiryDate: time.Now()}
	c.Status = string(v16.StatusCharging)

	// Reservation already consumed by a transaction (a different
	// reservation id is now pending) before the expiry timer fires.
	c.Reservation = nil

	e.expireReservation(1, 5, time.Now())

	assert.Nil(t, c.Reservation)
	assert.Equal(t, string(v16.StatusCharging), c.Status)
}

func TestReservationTerminationReasonCoversEveryExitPath(t *testing.T) {
	assert.Equal(t, "Cancelled", v16.ReservationTerminationReason(false, true, false))
	assert.Equal(t, v16.ReasonTransactionStarted, v16.ReservationTerminationReason(true, false, false))
	assert.Equal(t, "Expired", v16.ReservationTerminationReason(false, false, true))
	assert.Equal(t, "Expired", v16.ReservationTerminationReason(false, false, false))
}
