// Package uiserver implements the control-plane listener (spec.md §4.6):
// a WebSocket endpoint (sub-protocol ui0.0.1) and an HTTP POST route, both
// translating external requests into ControlBus calls, plus a static asset
// fallback for an out-of-scope UI front-end.
package uiserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/controlbus"
)

const subProtocol = "ui0.0.1"

// StaticAssets serves the out-of-scope UI front-end bundle. A no-op
// implementation is used when no front-end is embedded.
type StaticAssets interface {
	// Open returns the bytes for path and whether it was found.
	Open(path string) ([]byte, bool)
}

// NoAssets is the default StaticAssets: every path misses.
type NoAssets struct{}

func (NoAssets) Open(string) ([]byte, bool) { return nil, false }

// Lifecycle lets the control plane start/stop the whole fleet in response
// to START_SIMULATOR/STOP_SIMULATOR, without the uiserver package needing
// to import the supervisor package that constructs it (which in turn
// imports uiserver).
type Lifecycle interface {
	Start() error
	Stop()
}

// Config controls one Server instance.
type Config struct {
	ListenAddress string
	AuthEnabled   bool
	AuthUsername  string
	AuthPassword  string
}

// Server is the UIServer control-plane listener.
type Server struct {
	cfg       Config
	bus       *controlbus.Bus
	assets    StaticAssets
	lifecycle Lifecycle
	log       zerolog.Logger

	upgrader websocket.Upgrader
	router   *mux.Router
	http     *http.Server
}

// SetLifecycle attaches the fleet-level start/stop controller used by
// START_SIMULATOR/STOP_SIMULATOR. Optional: without one, those procedures
// report FAILURE.
func (s *Server) SetLifecycle(l Lifecycle) {
	s.lifecycle = l
}

// New constructs a Server bound to bus. Call ListenAndServe to start it.
func New(cfg Config, bus *controlbus.Bus, assets StaticAssets, log zerolog.Logger) *Server {
	if assets == nil {
		assets = NoAssets{}
	}
	s := &Server{
		cfg:    cfg,
		bus:    bus,
		assets: assets,
		log:    log.With().Str("component", "uiserver").Logger(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{subProtocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
	s.router = s.buildRouter()
	s.http = &http.Server{Addr: cfg.ListenAddress, Handler: s.router}
	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ui/ws", s.authenticated(s.handleWebSocket))
	r.HandleFunc("/ui/{version}/{procedure}", s.authenticated(s.handleHTTP)).Methods(http.MethodPost)
	r.PathPrefix("/").HandlerFunc(s.handleStatic)
	return r
}

// ListenAndServe starts the HTTP/WS listener; it blocks until the server is
// closed or a fatal error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("address", s.cfg.ListenAddress).Msg("starting uiserver")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the listener down.
func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	if !s.cfg.AuthEnabled {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.cfg.AuthUsername || pass != s.cfg.AuthPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="uiserver"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleHTTP implements POST /ui/{version}/{procedure} (spec.md §4.6 HTTP
// transport): SUCCESS → 200, FAILURE → 400, malformed request → 500.
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	procedure := vars["procedure"]

	var payload controlbus.FanOutPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	resp := s.dispatch(uuid.New().String(), procedure, payload)
	status := http.StatusOK
	if resp.Status == controlbus.StatusFailure {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// handleWebSocket implements the ui0.0.1 WebSocket transport: each inbound
// message is [uuid, procedure, payload]; responses are pushed back
// correlated by uuid.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame [3]json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "malformed frame"),
				time.Now().Add(time.Second))
			return
		}

		var id, procedure string
		if err := json.Unmarshal(frame[0], &id); err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid uuid"),
				time.Now().Add(time.Second))
			return
		}
		if err := json.Unmarshal(frame[1], &procedure); err != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid procedure"),
				time.Now().Add(time.Second))
			return
		}

		var payload controlbus.FanOutPayload
		_ = json.Unmarshal(frame[2], &payload)

		resp := s.dispatch(id, procedure, payload)
		out, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

// dispatch routes procedure either to the local handler set (for
// controlbus.LocalProcedures) or to a fan-out Bus.Call.
func (s *Server) dispatch(uuidStr, procedure string, payload controlbus.FanOutPayload) controlbus.Response {
	if controlbus.LocalProcedures[procedure] {
		return s.dispatchLocal(uuidStr, procedure)
	}

	result := s.bus.Call(procedure, payload, payload.Targets())
	if len(result.HashIdsFailed) == 0 {
		return controlbus.Response{UUID: uuidStr, Status: controlbus.StatusSuccess, Result: result}
	}
	var failure *controlbus.Failure
	if len(result.ResponsesFailed) > 0 {
		failure = &result.ResponsesFailed[0]
	}
	return controlbus.Response{UUID: uuidStr, Status: controlbus.StatusFailure, Result: result, Failure: failure}
}

func (s *Server) dispatchLocal(uuidStr, procedure string) controlbus.Response {
	switch procedure {
	case controlbus.ProcListChargingStations:
		return controlbus.Response{UUID: uuidStr, Status: controlbus.StatusSuccess, Result: s.bus.HashIds()}

	case controlbus.ProcStartSimulator:
		if s.lifecycle == nil {
			return localFailure(uuidStr, procedure, "no lifecycle controller attached")
		}
		if err := s.lifecycle.Start(); err != nil {
			return localFailure(uuidStr, procedure, err.Error())
		}
		return controlbus.Response{UUID: uuidStr, Status: controlbus.StatusSuccess}

	case controlbus.ProcStopSimulator:
		if s.lifecycle == nil {
			return localFailure(uuidStr, procedure, "no lifecycle controller attached")
		}
		s.lifecycle.Stop()
		return controlbus.Response{UUID: uuidStr, Status: controlbus.StatusSuccess}

	default:
		return localFailure(uuidStr, procedure, "local procedure not implemented")
	}
}

func localFailure(uuidStr, procedure, message string) controlbus.Response {
	return controlbus.Response{UUID: uuidStr, Status: controlbus.StatusFailure, Failure: &controlbus.Failure{
		Command:      procedure,
		ErrorMessage: message,
	}}
}

// handleStatic serves the UI front-end bundle from the Server's
// StaticAssets, redirecting / to /index.html. 404 on miss. No directory on
// disk (such as ./dist/) is read.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		http.Redirect(w, r, "/index.html", http.StatusFound)
		return
	}

	if data, ok := s.assets.Open(path); ok {
		w.Write(data)
		return
	}
	http.NotFound(w, r)
}
