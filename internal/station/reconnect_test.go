package station

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestCloseCodeExtractsGorillaCloseError(t *testing.T) {
	code, ok := closeCode(&websocket.CloseError{Code: websocket.CloseNormalClosure})
	assert.True(t, ok)
	assert.Equal(t, websocket.CloseNormalClosure, code)

	_, ok = closeCode(assert.AnError)
	assert.False(t, ok)
}

func TestReconnectDelayExponentialGrowsWithAttempt(t *testing.T) {
	e := newTestEngine()
	e.reconnectExponentialDelay = true

	assert.Equal(t, time.Second, e.reconnectDelay(1))
	assert.Equal(t, 2*time.Second, e.reconnectDelay(2))
	assert.Equal(t, 30*time.Second, e.reconnectDelay(1000))
}

func TestReconnectDelayLinearWithdrawsOneSecond(t *testing.T) {
	e := newTestEngine()
	e.connectionTimeout = 10 * time.Second

	assert.Equal(t, 9*time.Second, e.reconnectDelay(1))
}

func TestReconnectDelayLinearNeverNegative(t *testing.T) {
	e := newTestEngine()
	e.connectionTimeout = 500 * time.Millisecond

	assert.Equal(t, time.Duration(0), e.reconnectDelay(1))
}

func TestHandleDisconnectResetsCounterOnNormalClose(t *testing.T) {
	e := newTestEngine()
	e.Station.Started = true
	e.reconnectAttempt = 5

	e.handleDisconnect(&websocket.CloseError{Code: websocket.CloseNormalClosure})

	assert.Equal(t, 0, e.reconnectAttempt)
	assert.False(t, e.Station.Stopping)
}

func TestHandleDisconnectSkipsReconnectWhenNotStarted(t *testing.T) {
	e := newTestEngine()
	e.Station.Started = false

	assert.NotPanics(t, func() {
		e.handleDisconnect(assert.AnError)
	})
}

func TestReconnectLoopReturnsImmediatelyWhenDisabled(t *testing.T) {
	e := newTestEngine()
	e.Station.Started = true
	e.reconnectMaxRetries = 0

	done := make(chan struct{})
	go func() {
		e.reconnectLoop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconnectLoop did not return when reconnectMaxRetries is 0")
	}

	assert.Equal(t, 1, e.reconnectAttempt)
}
