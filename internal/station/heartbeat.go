package station

import (
	"encoding/json"
	"time"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
)

// startHeartbeatLoop starts (or restarts, idempotently) the periodic
// Heartbeat request at HeartbeatInterval seconds (spec.md §4.1).
func (e *Engine) startHeartbeatLoop(intervalSeconds int) {
	e.mu.Lock()
	if e.heartbeatStopCh != nil {
		close(e.heartbeatStopCh)
	}
	stopCh := make(chan struct{})
	e.heartbeatStopCh = stopCh
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if _, err := e.sendHeartbeat(); err != nil {
					e.log.Warn().Err(err).Msg("heartbeat failed")
				}
			}
		}
	}()
}

func (e *Engine) sendHeartbeat() (string, error) {
	if e.Station.OcppVersion == OcppVersion16 {
		raw, err := e.SendCall(v16.ActionHeartbeat, v16.HeartbeatRequest{})
		if err != nil {
			return "", err
		}
		var resp v16.HeartbeatResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", err
		}
		return resp.CurrentTime, nil
	}

	raw, err := e.SendCall(v201.ActionHeartbeat, v201.HeartbeatRequest{})
	if err != nil {
		return "", err
	}
	var resp v201.HeartbeatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	return resp.CurrentTime, nil
}
