package v16

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceCompilesSchemas(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)
	require.NotNil(t, svc.Validator)
	require.NotNil(t, svc.Dispatcher)
}

func TestBootNotificationRequestValidates(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)

	payload, err := json.Marshal(BootNotificationRequest{
		ChargePointVendor: "Acme",
		ChargePointModel:  "Simulator",
	})
	require.NoError(t, err)

	assert.NoError(t, svc.Validator.ValidateRequest(ActionBootNotification, payload))
}

func TestBootNotificationRequestRejectsMissingFields(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)

	err = svc.Validator.ValidateRequest(ActionBootNotification, json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestReservationTerminationReasonFallthroughDefaultsToExpired(t *testing.T) {
	assert.Equal(t, "Cancelled", ReservationTerminationReason(false, true, false))
	assert.Equal(t, ReasonTransactionStarted, ReservationTerminationReason(true, false, false))
	assert.Equal(t, "Expired", ReservationTerminationReason(false, false, true))
	assert.Equal(t, "Expired", ReservationTerminationReason(false, false, false))
}
