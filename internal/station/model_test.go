package station

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectorByIDFlatTopology(t *testing.T) {
	st := &Station{Connectors: map[int]*Connector{1: {Id: 1}, 2: {Id: 2}}}

	c, ok := st.ConnectorByID(2)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Id)

	_, ok = st.ConnectorByID(99)
	assert.False(t, ok)
}

func TestConnectorByIDEvseTopology(t *testing.T) {
	st := &Station{Evses: map[int]*EVSE{
		1: {Id: 1, Connectors: map[int]*Connector{1: {Id: 1}}},
	}}

	c, ok := st.ConnectorByID(1)
	assert.True(t, ok)
	assert.Equal(t, 1, c.Id)
}

func TestAllConnectorsFlattensEvseTopology(t *testing.T) {
	st := &Station{Evses: map[int]*EVSE{
		1: {Id: 1, Connectors: map[int]*Connector{1: {Id: 1}, 2: {Id: 2}}},
		2: {Id: 2, Connectors: map[int]*Connector{3: {Id: 3}}},
	}}

	all := st.AllConnectors()
	assert.Len(t, all, 3)
}

func TestRunningTransactionsCountsActiveOnly(t *testing.T) {
	st := &Station{Connectors: map[int]*Connector{
		1: {Id: 1, TransactionStarted: true},
		2: {Id: 2, TransactionStarted: false},
		3: {Id: 3, TransactionStarted: true},
	}}

	assert.Equal(t, 2, st.RunningTransactions())
}

func TestIsAcceptedRequiresAcceptedStatus(t *testing.T) {
	st := &Station{}
	assert.False(t, st.IsAccepted())

	st.BootNotificationResponse = &BootNotificationResponse{Status: "Pending"}
	assert.False(t, st.IsAccepted())

	st.BootNotificationResponse = &BootNotificationResponse{Status: "Accepted"}
	assert.True(t, st.IsAccepted())
}
