package station

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/weilun-shrimp/wlgows/client"
	"github.com/weilun-shrimp/wlgows/connection"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/atg"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// OCPP_WS_COMMAND_TIMEOUT is the default per-request deadline (spec.md §5).
const OCPP_WS_COMMAND_TIMEOUT = 60 * time.Second

// bufferedMessage is one outbound CALL parked while the socket is down.
type bufferedMessage struct {
	action      string
	payload     interface{}
	commandName string
}

// Engine is the per-station actor: it owns the Station data model, the
// WebSocket connection, the request cache, and the wiring into the
// version-specific OCPP service. One Engine corresponds to one
// StationEngine in spec.md §4.1.
type Engine struct {
	mu sync.RWMutex

	Station *Station
	log     zerolog.Logger

	tlsConfig *tls.Config
	serverURL string

	v16Service  *v16.Service
	v201Service *v201.Service

	// dispatch is this station's own action-handler table. The schema
	// Validator inside v16Service/v201Service is shared read-only across
	// every station of that version, but handlers close over this one
	// Engine, so each Engine gets its own Dispatcher built on top of the
	// shared Validator.
	dispatch *ocpp.Dispatcher

	conn        *connection.ClientConn
	isConnected bool
	stopCh      chan struct{}

	requests *ocpp.RequestCache
	buffer   []bufferedMessage

	heartbeatStopCh chan struct{}

	registrationMaxRetries    int
	reconnectAttempt          int
	reconnectMaxRetries       int
	connectionTimeout         time.Duration
	reconnectExponentialDelay bool
	stopOnConnectionFailure   bool
	wsConnectionRestarted     bool

	payloadSchemaValidation bool
	strictCompliance        bool

	atgLoops map[int]*atg.Loop

	onHandled func(action string, incoming bool)
}

// EngineConfig bundles the construction-time parameters an Engine needs beyond
// the Station model itself.
type EngineConfig struct {
	ServerURL                 string
	TLSConfig                 *tls.Config
	V16Service                *v16.Service
	V201Service               *v201.Service
	RegistrationMaxRetries    int // -1 infinite, 0 no retry; bounds BootNotification retries
	ReconnectMaxRetries       int // -1 infinite, 0 disabled; bounds the post-disconnect reconnect loop
	ConnectionTimeout         time.Duration
	ReconnectExponentialDelay bool
	StopOnConnectionFailure   bool // stop ATG before attempting to reconnect
	PayloadSchemaValidation   bool
	StrictCompliance          bool
	Logger                    zerolog.Logger
}

// NewEngine constructs an Engine over an already-initialized Station.
func NewEngine(st *Station, cfg EngineConfig) *Engine {
	var validator *ocpp.Validator
	if st.OcppVersion == OcppVersion16 {
		validator = cfg.V16Service.Validator
	} else {
		validator = cfg.V201Service.Validator
	}

	return &Engine{
		Station:                   st,
		log:                       cfg.Logger.With().Str("hashId", st.HashId).Str("chargingStationId", st.ChargingStationId).Logger(),
		tlsConfig:                 cfg.TLSConfig,
		serverURL:                 cfg.ServerURL,
		v16Service:                cfg.V16Service,
		v201Service:               cfg.V201Service,
		dispatch:                  ocpp.NewDispatcher(validator),
		requests:                  ocpp.NewRequestCache(),
		registrationMaxRetries:    cfg.RegistrationMaxRetries,
		reconnectMaxRetries:       cfg.ReconnectMaxRetries,
		connectionTimeout:         cfg.ConnectionTimeout,
		reconnectExponentialDelay: cfg.ReconnectExponentialDelay,
		stopOnConnectionFailure:   cfg.StopOnConnectionFailure,
		payloadSchemaValidation:   cfg.PayloadSchemaValidation,
		strictCompliance:          cfg.StrictCompliance,
	}
}

// dispatcher returns this station's own Dispatcher, pre-wired to its
// version's shared schema Validator but owning a private handler table.
func (e *Engine) dispatcher() *ocpp.Dispatcher {
	return e.dispatch
}

func (e *Engine) validator() *ocpp.Validator {
	if e.Station.OcppVersion == OcppVersion16 {
		return e.v16Service.Validator
	}
	return e.v201Service.Validator
}

// Start opens the connection and runs the boot sequence. It is idempotent:
// calling Start on an already-started engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.Station.Started || e.Station.Starting {
		e.mu.Unlock()
		return nil
	}
	e.Station.Starting = true
	e.mu.Unlock()

	e.RegisterHandlers()

	defer func() {
		e.mu.Lock()
		e.Station.Starting = false
		e.mu.Unlock()
	}()

	if err := e.openConnection(); err != nil {
		return err
	}

	if err := e.runBootSequence(); err != nil {
		return err
	}

	e.mu.Lock()
	e.Station.Started = true
	e.mu.Unlock()
	return nil
}

// openConnection dials the CSMS over WebSocket and starts the read loop.
func (e *Engine) openConnection() error {
	e.mu.Lock()
	if e.isConnected {
		e.mu.Unlock()
		return nil
	}
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	e.log.Info().Str("url", e.serverURL).Msg("connecting")

	conn, err := client.Dial(e.serverURL, e.tlsConfig)
	if err != nil {
		return ocpperror.Transport("dial failed", err)
	}
	if err := conn.HandShake(); err != nil {
		conn.Close()
		return ocpperror.Transport("handshake failed", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.isConnected = true
	e.reconnectAttempt = 0
	e.mu.Unlock()

	go e.receiveLoop()
	return nil
}

// closeConnection tears down the socket and the heartbeat timer, then
// cancels in-flight requests (spec.md §5 cancellation rules). Per-connector
// MeterValues loops are left running.
func (e *Engine) closeConnection() {
	e.mu.Lock()
	if !e.isConnected {
		e.mu.Unlock()
		return
	}
	if e.heartbeatStopCh != nil {
		close(e.heartbeatStopCh)
		e.heartbeatStopCh = nil
	}
	close(e.stopCh)
	conn := e.conn
	e.conn = nil
	e.isConnected = false
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	e.requests.DrainWithError(ocpperror.Transport("connection closed", nil))
}

// Stop stops the station's attached ATG loops, then closes the connection
// and marks the station stopped, per spec.md §4.7's stop() ordering.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.Station.Stopping = true
	e.mu.Unlock()

	e.StopATG(nil)
	e.closeConnection()

	e.mu.Lock()
	e.Station.Started = false
	e.Station.Stopping = false
	e.mu.Unlock()
}

// IsConnected reports whether the socket is currently open.
func (e *Engine) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isConnected
}

// receiveLoop pumps frames off the socket until it closes, then triggers
// the reconnect policy unless the engine is being stopped deliberately.
func (e *Engine) receiveLoop() {
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		msg, err := e.conn.GetNextMsg()
		if err != nil {
			if err == io.EOF {
				e.log.Info().Msg("server closed connection")
			} else {
				e.log.Warn().Err(err).Msg("receive error")
			}
			e.handleDisconnect(err)
			return
		}

		data := []byte(msg.GetStr())
		go e.handleFrame(data)
	}
}

// normalCloseCodes are the WS close codes spec.md §4.1 treats as a
// deliberate end of lifecycle: they reset the reconnect counter instead
// of triggering a reconnect.
var normalCloseCodes = map[int]bool{
	websocket.CloseNormalClosure:   true, // 1000
	websocket.CloseNoStatusReceived: true, // 1005
}

// closeCode extracts the WS close code from a GetNextMsg error, if the
// underlying transport surfaced one.
func closeCode(err error) (int, bool) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, true
	}
	return 0, false
}

// handleDisconnect closes out the current connection and, unless the
// engine was stopped deliberately or the socket closed with a normal close
// code, schedules a reconnect with backoff bounded by connectionTimeout
// (spec.md §4.1 "Close semantics"/"Reconnect policy").
func (e *Engine) handleDisconnect(closeErr error) {
	e.mu.Lock()
	stopping := e.Station.Stopping
	started := e.Station.Started
	if code, ok := closeCode(closeErr); ok && normalCloseCodes[code] {
		e.reconnectAttempt = 0
		stopping = true // suppress reconnect below without touching Station.Stopping
	}
	e.mu.Unlock()

	e.closeConnection()

	if stopping || !started {
		return
	}

	if e.stopOnConnectionFailure {
		e.StopATG(nil)
	}

	go e.reconnectLoop()
}

func (e *Engine) reconnectLoop() {
	for {
		e.mu.Lock()
		e.reconnectAttempt++
		attempt := e.reconnectAttempt
		maxRetries := e.reconnectMaxRetries
		e.mu.Unlock()

		if maxRetries == 0 {
			return
		}
		if maxRetries > 0 && attempt > maxRetries {
			e.log.Warn().Int("attempt", attempt).Msg("reconnect attempts exhausted")
			return
		}

		e.mu.RLock()
		stopping := e.Station.Stopping
		e.mu.RUnlock()
		if stopping {
			return
		}

		time.Sleep(e.reconnectDelay(attempt))

		e.mu.RLock()
		stopping = e.Station.Stopping
		e.mu.RUnlock()
		if stopping {
			return
		}

		if err := e.openConnection(); err != nil {
			e.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}
		if err := e.runBootSequence(); err != nil {
			e.log.Warn().Err(err).Msg("reconnect boot sequence failed")
			continue
		}

		e.mu.Lock()
		e.wsConnectionRestarted = true
		e.mu.Unlock()
		e.flushBuffer()
		return
	}
}

// reconnectDelay computes the backoff before the next reconnect attempt:
// an exponential series when reconnectExponentialDelay is set, otherwise
// the configured connectionTimeout with 1s withdrawn (spec.md §4.1).
func (e *Engine) reconnectDelay(attempt int) time.Duration {
	if e.reconnectExponentialDelay {
		return time.Duration(math.Min(math.Pow(2, float64(attempt-1))*float64(time.Second), float64(30*time.Second)))
	}
	delay := e.connectionTimeout - time.Second
	if delay < 0 {
		delay = 0
	}
	return delay
}

// handleFrame parses and routes one inbound wire frame.
func (e *Engine) handleFrame(data []byte) {
	frame, err := ocpp.Parse(data)
	if err != nil {
		e.log.Warn().Err(err).Msg("malformed frame")
		return
	}

	switch frame.Type {
	case ocpp.MessageTypeCall:
		e.handleIncomingCall(frame)
	case ocpp.MessageTypeCallResult:
		e.requests.Resolve(frame.ID, frame.Payload)
	case ocpp.MessageTypeCallError:
		e.requests.Reject(frame.ID, &ocpperror.Error{
			Kind:        ocpperror.KindProtocol,
			Code:        frame.ErrorCode,
			Description: frame.ErrorDescription,
		})
	}
}

func (e *Engine) handleIncomingCall(frame ocpp.Frame) {
	resp, err := e.dispatcher().Dispatch(frame)
	if err != nil {
		e.log.Error().Err(err).Str("action", frame.Action).Msg("failed to build dispatch response")
		return
	}
	e.send(resp)
}

func (e *Engine) send(data []byte) {
	e.mu.RLock()
	conn := e.conn
	e.mu.RUnlock()
	if conn == nil {
		return
	}
	conn.SendText(data)
}

// bufferable reports whether action may be queued while disconnected;
// BootNotification never buffers, matching spec.md §4.1's buffering rule.
func bufferable(action string) bool {
	return action != v16.ActionBootNotification && action != v201.ActionBootNotification
}

// SendCall issues an outbound CALL, registering it in the request cache and
// either sending immediately or buffering it if disconnected (spec.md §4.1
// outbound message flow). It blocks until the response arrives, the
// request times out, or the connection is torn down.
func (e *Engine) SendCall(action string, payload interface{}) (json.RawMessage, error) {
	if e.payloadSchemaValidation {
		raw, err := json.Marshal(payload)
		if err == nil {
			if verr := e.validator().ValidateRequest(action, raw); verr != nil {
				return nil, verr
			}
		}
	}

	id := uuid.New().String()
	result := make(chan json.RawMessage, 1)
	errc := make(chan *ocpperror.Error, 1)

	e.requests.Register(id, action, payload, OCPP_WS_COMMAND_TIMEOUT,
		func(p []byte) { result <- p },
		func(err *ocpperror.Error) { errc <- err },
	)

	if e.IsConnected() {
		data, err := ocpp.BuildCall(id, action, payload)
		if err != nil {
			return nil, ocpperror.Protocol("failed to marshal call", err)
		}
		e.send(data)
	} else if bufferable(action) {
		e.mu.Lock()
		e.buffer = append(e.buffer, bufferedMessage{action: action, payload: payload, commandName: action})
		e.mu.Unlock()
	} else {
		e.requests.Reject(id, ocpperror.Transport("not connected and action is not bufferable", nil))
	}

	select {
	case p := <-result:
		return p, nil
	case err := <-errc:
		return nil, err
	}
}

// flushBuffer resends every buffered message in insertion order after a
// successful reconnect.
func (e *Engine) flushBuffer() {
	e.mu.Lock()
	pending := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	go func() {
		for _, m := range pending {
			if _, err := e.SendCall(m.action, m.payload); err != nil {
				e.log.Warn().Err(err).Str("action", m.action).Msg("buffered message failed after flush")
			}
		}
	}()
}

// randomJitter returns a whole number of seconds uniformly distributed in
// [min, max), or min when max <= min. Nothing in this package calls it.
func randomJitter(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Second
	}
	return time.Duration(min+rand.Intn(max-min)) * time.Second
}
