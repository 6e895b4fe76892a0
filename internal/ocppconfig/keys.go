// Package ocppconfig implements the per-station OCPP configuration-key
// store: an ordered {key, value, readonly, visible, reboot} sequence with
// case-sensitive and case-insensitive lookup (spec.md §3, §8).
package ocppconfig

import (
	"strconv"
	"strings"
)

// Key is a single OCPP configuration entry.
type Key struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Readonly bool   `json:"readonly"`
	Visible  bool   `json:"visible"`
	Reboot   bool   `json:"reboot"`
}

// Well-known default key names, including the one hidden duplicate carried
// for wire compatibility per spec.md §9's open question.
const (
	KeyHeartbeatInterval      = "HeartbeatInterval"
	KeyHeartBeatIntervalAlias = "HeartBeatInterval" // hidden duplicate, kept in sync
	KeySupportedFeatureProfiles = "SupportedFeatureProfiles"
	KeyNumberOfConnectors     = "NumberOfConnectors"
	KeyMeterValuesSampledData = "MeterValuesSampledData"
	KeyConnectorPhaseRotation = "ConnectorPhaseRotation"
	KeyAuthorizeRemoteTxRequests = "AuthorizeRemoteTxRequests"
	KeyConnectionTimeOut      = "ConnectionTimeOut"
	KeyLocalAuthListEnabled   = "LocalAuthListEnabled"
)

// Store holds an ordered sequence of Keys with O(1) lookup by normalized
// key name. Insertion order is preserved across Set/overwrite.
type Store struct {
	order []string      // normalized key -> preserves insertion order
	byKey map[string]int // normalized key -> index into entries
	entries []Key
	caseSensitive bool
}

// New creates an empty Store. caseSensitive controls whether Get/Set match
// keys exactly or case-insensitively; OCPP 1.6 configuration keys are
// conventionally looked up case-sensitively, but the store supports both.
func New(caseSensitive bool) *Store {
	return &Store{
		byKey:         make(map[string]int),
		caseSensitive: caseSensitive,
	}
}

func (s *Store) normalize(key string) string {
	if s.caseSensitive {
		return key
	}
	return strings.ToLower(key)
}

// Get returns the entry for key and whether it was found.
func (s *Store) Get(key string) (Key, bool) {
	idx, ok := s.byKey[s.normalize(key)]
	if !ok {
		return Key{}, false
	}
	return s.entries[idx], true
}

// GetValue is a convenience accessor returning just the value string.
func (s *Store) GetValue(key string) (string, bool) {
	k, ok := s.Get(key)
	if !ok {
		return "", false
	}
	return k.Value, true
}

// Set inserts or updates key. If the key already exists and overwrite is
// false, Set is a no-op and returns false (spec.md §8 idempotence
// property). If overwrite is true, the value is replaced in place,
// preserving insertion order.
func (s *Store) Set(k Key, overwrite bool) bool {
	norm := s.normalize(k.Key)
	if idx, ok := s.byKey[norm]; ok {
		if !overwrite {
			return false
		}
		s.entries[idx] = k
		return true
	}
	s.entries = append(s.entries, k)
	s.byKey[norm] = len(s.entries) - 1
	s.order = append(s.order, norm)
	return true
}

// SetValue is a convenience wrapper over Set that only touches Value,
// preserving the existing Readonly/Visible/Reboot flags when the key
// already exists.
func (s *Store) SetValue(key, value string) {
	if idx, ok := s.byKey[s.normalize(key)]; ok {
		s.entries[idx].Value = value
		return
	}
	s.Set(Key{Key: key, Value: value, Visible: true}, true)
}

// All returns the entries in insertion order. The returned slice is a copy;
// callers must not rely on its identity surviving further mutation.
func (s *Store) All() []Key {
	out := make([]Key, len(s.entries))
	copy(out, s.entries)
	return out
}

// Filter returns only the entries whose Key is in keys, in keys' order,
// skipping any that don't exist (used by GetConfiguration's requested-keys
// form).
func (s *Store) Filter(keys []string) (found []Key, unknown []string) {
	for _, key := range keys {
		if k, ok := s.Get(key); ok {
			found = append(found, k)
		} else {
			unknown = append(unknown, key)
		}
	}
	return found, unknown
}

// SetHeartbeatInterval keeps HeartbeatInterval and its hidden
// HeartBeatInterval alias (spec.md §9 open question) in sync as a single
// logical write.
func (s *Store) SetHeartbeatInterval(seconds int) {
	val := strconv.Itoa(seconds)
	s.setOrInit(KeyHeartbeatInterval, val, true, true, false)
	s.setOrInit(KeyHeartBeatIntervalAlias, val, true, false, false)
}

func (s *Store) setOrInit(key, value string, readonly, visible, reboot bool) {
	if idx, ok := s.byKey[s.normalize(key)]; ok {
		s.entries[idx].Value = value
		return
	}
	s.Set(Key{Key: key, Value: value, Readonly: readonly, Visible: visible, Reboot: reboot}, true)
}

