package station

import (
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/atg"
)

// AttachATGLoop registers loop as the AutomaticTransactionGenerator for one
// connector. Supervisor construction wires one loop per connector whose
// template enables AutomaticTransactionGenerator; Engine only starts/stops
// them, it does not construct them (loops need the idtag.Cache and ATG
// Config that live at the supervisor level).
func (e *Engine) AttachATGLoop(connectorId int, loop *atg.Loop) {
	e.mu.Lock()
	if e.atgLoops == nil {
		e.atgLoops = make(map[int]*atg.Loop)
	}
	e.atgLoops[connectorId] = loop
	e.mu.Unlock()
}

// StartATG starts the ATG loop for each connector in connectorIds, or every
// attached loop if connectorIds is empty (spec.md §4.7 "union behavior").
func (e *Engine) StartATG(connectorIds []int) {
	for _, loop := range e.selectATGLoops(connectorIds) {
		loop.Start()
	}
}

// StopATG stops the ATG loop for each connector in connectorIds, or every
// attached loop if connectorIds is empty.
func (e *Engine) StopATG(connectorIds []int) {
	for _, loop := range e.selectATGLoops(connectorIds) {
		loop.Stop()
	}
}

func (e *Engine) selectATGLoops(connectorIds []int) []*atg.Loop {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(connectorIds) == 0 {
		out := make([]*atg.Loop, 0, len(e.atgLoops))
		for _, l := range e.atgLoops {
			out = append(out, l)
		}
		return out
	}

	out := make([]*atg.Loop, 0, len(connectorIds))
	for _, id := range connectorIds {
		if l, ok := e.atgLoops[id]; ok {
			out = append(out, l)
		}
	}
	return out
}
