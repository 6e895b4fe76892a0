package worker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager owns the set of Hosts for one Config.Mode and routes
// startWorkerElement admissions to them: workerSet grows by adding hosts,
// staticPool/dynamicPool route into a fixed or elastic single pool.
type Manager struct {
	mu              sync.Mutex
	cfg             Config
	log             zerolog.Logger
	workerStartDelay time.Duration

	hosts []*Host
}

// NewManager constructs a Manager with one initial Host already running.
func NewManager(cfg Config, workerStartDelay time.Duration, log zerolog.Logger) *Manager {
	m := &Manager{cfg: cfg, log: log, workerStartDelay: workerStartDelay}
	m.hosts = []*Host{NewHost(cfg, log)}
	return m
}

// Admit starts element under id, routing to an existing Host with room or,
// for workerSet, spinning up a new Host spaced by workerStartDelay.
func (m *Manager) Admit(id string, element Element) error {
	host := m.routeHost()
	return host.StartElement(id, element)
}

func (m *Manager) routeHost() *Host {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range m.hosts {
		if !h.Full() {
			return h
		}
	}

	if m.cfg.Mode == ModeWorkerSet {
		if m.workerStartDelay > 0 {
			time.Sleep(m.workerStartDelay)
		}
		h := NewHost(m.cfg, m.log)
		m.hosts = append(m.hosts, h)
		return h
	}

	// staticPool/dynamicPool are bounded; route into the last host and let
	// it track over-capacity rather than silently dropping the element.
	return m.hosts[len(m.hosts)-1]
}

// StopAll stops every Host this Manager owns.
func (m *Manager) StopAll() {
	m.mu.Lock()
	hosts := m.hosts
	m.mu.Unlock()

	for _, h := range hosts {
		h.StopAll()
	}
}

// Size returns the total number of elements across all hosts.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, h := range m.hosts {
		total += h.Size()
	}
	return total
}
