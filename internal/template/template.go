// Package template implements TemplateStore: loads station templates keyed
// by file path, content-hashes each, caches parsed results, and can watch
// the loaded template files for changes (spec.md §2, §5's shared LRU cache).
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/hashid"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpperror"
)

// ConnectorTemplate is one entry of a station template's Connectors map.
type ConnectorTemplate struct {
	Status         string `json:"status,omitempty"`
	ErrorCode      string `json:"errorCode,omitempty"`
	MeterSerial    string `json:"meterSerialNumber,omitempty"`
	ReservationId  int    `json:"reservationId,omitempty"`
}

// EVSETemplate groups connectors under the 2.0 topology.
type EVSETemplate struct {
	Connectors map[string]ConnectorTemplate `json:"connectors,omitempty"`
}

// AutomaticTransactionGeneratorTemplate mirrors the station template's ATG block.
type AutomaticTransactionGeneratorTemplate struct {
	Enable                bool    `json:"enable"`
	MinDurationSeconds     int     `json:"minDurationSeconds,omitempty"`
	MaxDurationSeconds     int     `json:"maxDurationSeconds,omitempty"`
	MinDelayBetweenTwoTransactionSeconds int `json:"minDelayBetweenTwoTransactionSeconds,omitempty"`
	MaxDelayBetweenTwoTransactionSeconds int `json:"maxDelayBetweenTwoTransactionSeconds,omitempty"`
	ProbabilityOfStart     float64 `json:"probabilityOfStart,omitempty"`
	RequireAuthorize       bool    `json:"requireAuthorize,omitempty"`
	StopAfterHours         float64 `json:"stopAfterHours,omitempty"`
	StopOnConnectionFailure bool   `json:"stopOnConnectionFailure,omitempty"`
}

// Template is the parsed shape of a station template JSON file, per
// spec.md §6's "Station template file" field list.
type Template struct {
	Connectors      map[string]ConnectorTemplate `json:"Connectors,omitempty"`
	Evses           map[string]EVSETemplate      `json:"Evses,omitempty"`
	AutomaticTransactionGenerator *AutomaticTransactionGeneratorTemplate `json:"AutomaticTransactionGenerator,omitempty"`
	Configuration   map[string]string            `json:"Configuration,omitempty"`

	ChargePointModel          string   `json:"chargePointModel"`
	ChargePointVendor         string   `json:"chargePointVendor"`
	FirmwareVersion           string   `json:"firmwareVersion,omitempty"`
	FirmwareVersionPattern    string   `json:"firmwareVersionPattern,omitempty"`
	Power                     json.RawMessage `json:"power,omitempty"`
	PowerUnit                 string   `json:"powerUnit,omitempty"`
	NumberOfPhases            int      `json:"numberOfPhases,omitempty"`
	CurrentOutType            string   `json:"currentOutType,omitempty"`
	VoltageOut                float64  `json:"voltageOut,omitempty"`
	OcppVersion               string   `json:"ocppVersion,omitempty"`
	SupervisionUrls           []string `json:"supervisionUrls,omitempty"`
	SupervisionUrlOcppConfiguration bool `json:"supervisionUrlOcppConfiguration,omitempty"`
	SupervisionUrlOcppKey     string   `json:"supervisionUrlOcppKey,omitempty"`
	UseConnectorId0           bool     `json:"useConnectorId0,omitempty"`
	RandomConnectors          bool     `json:"randomConnectors,omitempty"`
	AutoRegister              bool     `json:"autoRegister,omitempty"`
	AmperageLimitationOcppKey string   `json:"amperageLimitationOcppKey,omitempty"`
	PowerSharedByConnectors   bool     `json:"powerSharedByConnectors,omitempty"`
}

type cacheEntry struct {
	contentHash string
	template    *Template
}

// Store caches parsed templates keyed by file path, invalidated whenever
// the file's content hash changes. A single Store is shared by every
// WorkerHost on a process per spec.md §5's "shared state" rule.
type Store struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	watcher *fsnotify.Watcher
	log     zerolog.Logger
	onChange func(path string)
}

// New creates an empty Store. Call Watch to start receiving fsnotify
// events for loaded template files.
func New(log zerolog.Logger) *Store {
	return &Store{
		entries: make(map[string]cacheEntry),
		log:     log.With().Str("component", "template-store").Logger(),
	}
}

// Load reads path, content-hashes it, and returns the cached parsed
// Template if the hash is unchanged, else reparses and replaces the entry.
func (s *Store) Load(path string) (*Template, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", ocpperror.IO(ioCategory(err), fmt.Errorf("read template %s: %w", path, err))
	}
	hash := hashid.ContentHash(data)

	s.mu.RLock()
	existing, ok := s.entries[path]
	s.mu.RUnlock()
	if ok && existing.contentHash == hash {
		return existing.template, hash, nil
	}

	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, "", ocpperror.Validation(fmt.Sprintf("template %s is not valid JSON", path), err)
	}

	s.mu.Lock()
	s.entries[path] = cacheEntry{contentHash: hash, template: &tpl}
	s.mu.Unlock()

	if s.watcher != nil {
		if err := s.watcher.Add(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("failed to watch template file")
		}
	}

	return &tpl, hash, nil
}

// Watch starts an fsnotify watcher and invokes onChange for every Write or
// Create event on a watched template file; a rapid burst of events yields
// one call per event, with no coalescing. Only files loaded after Watch is
// called are watched.
func (s *Store) Watch(onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create template watcher: %w", err)
	}
	s.watcher = watcher
	s.onChange = onChange

	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.invalidate(event.Name)
				if s.onChange != nil {
					s.onChange(event.Name)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("template watcher error")
		}
	}
}

func (s *Store) invalidate(path string) {
	s.mu.Lock()
	delete(s.entries, path)
	s.mu.Unlock()
}

// Close stops the underlying fsnotify watcher, if one was started.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func ioCategory(err error) string {
	if os.IsNotExist(err) {
		return ocpperror.IOCategoryNotFound
	}
	if os.IsPermission(err) {
		return ocpperror.IOCategoryPermissionDenied
	}
	return ocpperror.IOCategoryOther
}
