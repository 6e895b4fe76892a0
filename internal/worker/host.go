// Package worker implements WorkerHost: a bounded set of StationEngine
// instances sharing one pool-management policy (spec.md §4.4). Grounded on
// the teacher's process-level concurrency model (one goroutine per
// station), generalized from "one charger per process" to many stations
// hosted cooperatively.
package worker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Mode selects how a Host admits and retires elements.
type Mode string

const (
	ModeWorkerSet   Mode = "workerSet"
	ModeStaticPool  Mode = "staticPool"
	ModeDynamicPool Mode = "dynamicPool"
)

// Element is the unit a Host manages: a startable/stoppable station
// actor. internal/station.Engine satisfies this.
type Element interface {
	Start() error
	Stop()
}

// Config governs one Host's admission and pacing policy.
type Config struct {
	Mode                 Mode
	ElementsPerWorker    int // workerSet: host is "full" above this count
	PoolMinSize          int // dynamicPool
	PoolMaxSize          int // dynamicPool / staticPool
	PoolMaxInactiveTime  time.Duration
	ElementStartDelay    time.Duration
	RestartWorkerOnError bool
}

type hostedElement struct {
	id         string
	element    Element
	lastActive time.Time
}

// Host owns a bounded set of Elements, admitting new ones per Config.Mode
// and applying ElementStartDelay pacing between starts (spec.md §4.4).
type Host struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	elements map[string]*hostedElement
	reaperStop chan struct{}
}

// NewHost constructs a Host. Callers are responsible for WorkerStartDelay
// spacing between successive NewHost calls (spec.md's "hosts are started
// with workerStartDelay spacing").
func NewHost(cfg Config, log zerolog.Logger) *Host {
	h := &Host{
		cfg:      cfg,
		log:      log,
		elements: make(map[string]*hostedElement),
	}
	if cfg.Mode == ModeDynamicPool && cfg.PoolMaxInactiveTime > 0 {
		h.reaperStop = make(chan struct{})
		go h.reapLoop()
	}
	return h
}

// Full reports whether this host can accept another element under its
// configured mode.
func (h *Host) Full() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.cfg.Mode {
	case ModeWorkerSet:
		return h.cfg.ElementsPerWorker > 0 && len(h.elements) >= h.cfg.ElementsPerWorker
	case ModeStaticPool, ModeDynamicPool:
		return h.cfg.PoolMaxSize > 0 && len(h.elements) >= h.cfg.PoolMaxSize
	default:
		return false
	}
}

// Size reports the number of elements currently hosted.
func (h *Host) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.elements)
}

// StartElement admits id, waits ElementStartDelay for cold-start pacing,
// then starts it. On failure with RestartWorkerOnError it retries once
// after the same delay.
func (h *Host) StartElement(id string, element Element) error {
	if h.cfg.ElementStartDelay > 0 {
		time.Sleep(h.cfg.ElementStartDelay)
	}

	h.mu.Lock()
	h.elements[id] = &hostedElement{id: id, element: element, lastActive: time.Now()}
	h.mu.Unlock()

	err := element.Start()
	if err != nil && h.cfg.RestartWorkerOnError {
		h.log.Warn().Err(err).Str("elementId", id).Msg("element start failed, retrying once")
		time.Sleep(h.cfg.ElementStartDelay)
		err = element.Start()
	}
	if err != nil {
		h.log.Error().Err(err).Str("elementId", id).Msg("element start failed")
	}
	return err
}

// Touch records activity for id, resetting its idle-reap clock.
func (h *Host) Touch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.elements[id]; ok {
		e.lastActive = time.Now()
	}
}

// StopElement stops and removes id, if hosted.
func (h *Host) StopElement(id string) {
	h.mu.Lock()
	e, ok := h.elements[id]
	if ok {
		delete(h.elements, id)
	}
	h.mu.Unlock()

	if ok {
		e.element.Stop()
	}
}

// StopAll stops every hosted element, per spec.md §4.7's shutdown ordering
// (each element's Stop stops its own ATG loops before closing).
func (h *Host) StopAll() {
	h.mu.Lock()
	all := make([]*hostedElement, 0, len(h.elements))
	for _, e := range h.elements {
		all = append(all, e)
	}
	h.elements = make(map[string]*hostedElement)
	h.mu.Unlock()

	for _, e := range all {
		e.element.Stop()
	}

	if h.reaperStop != nil {
		close(h.reaperStop)
	}
}

// reapLoop implements dynamicPool's POOL_MAX_INACTIVE_TIME idle reap, never
// shrinking below PoolMinSize.
func (h *Host) reapLoop() {
	ticker := time.NewTicker(h.cfg.PoolMaxInactiveTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-h.reaperStop:
			return
		case <-ticker.C:
			h.reapIdle()
		}
	}
}

func (h *Host) reapIdle() {
	h.mu.Lock()
	if len(h.elements) <= h.cfg.PoolMinSize {
		h.mu.Unlock()
		return
	}

	now := time.Now()
	var idle []*hostedElement
	for _, e := range h.elements {
		if now.Sub(e.lastActive) >= h.cfg.PoolMaxInactiveTime {
			idle = append(idle, e)
		}
	}
	h.mu.Unlock()

	for _, e := range idle {
		h.mu.Lock()
		if len(h.elements) <= h.cfg.PoolMinSize {
			h.mu.Unlock()
			break
		}
		delete(h.elements, e.id)
		h.mu.Unlock()
		e.element.Stop()
	}
}
