package station

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/filelock"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocppconfig"
)

// PersistedConfig is the on-disk record of one station's resolved
// configuration keys, tagged with the template content hash it was
// derived from (spec.md §6 step 2: "merge persisted per-station
// configuration onto template-derived defaults, if its templateHash
// matches").
type PersistedConfig struct {
	TemplateHash string           `json:"templateHash"`
	Keys         []ocppconfig.Key `json:"keys"`
}

// LoadPersistedConfig reads path's persisted configuration, if present. A
// missing file is not an error: it means no station has persisted
// configuration at this path yet.
func LoadPersistedConfig(path string) (*PersistedConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read persisted config %s: %w", path, err)
	}

	var cfg PersistedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse persisted config %s: %w", path, err)
	}
	return &cfg, nil
}

// SavePersistedConfig atomically writes st's current configuration keys to
// path under the path's filelock, so concurrent stations sharing a
// template directory never interleave writes (spec.md §5).
func SavePersistedConfig(path string, templateHash string, st *Station) error {
	st.mu.RLock()
	cfg := PersistedConfig{TemplateHash: templateHash, Keys: st.ConfigurationKeys.All()}
	st.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal persisted config: %w", err)
	}

	return filelock.WithLock(path, func() error {
		return filelock.AtomicWriteFile(path, data, 0o644)
	})
}

// applyPersistedConfig overlays persisted key values onto st's
// freshly-built configuration store, when persisted.TemplateHash matches
// the template's current content hash. A mismatched hash means the
// template changed underneath the persisted file, so the freshly
// materialized defaults win instead (spec.md §6 step 3's "if template
// config changed, rebuild").
func applyPersistedConfig(st *Station, persisted *PersistedConfig, templateHash string) {
	if persisted == nil || persisted.TemplateHash != templateHash {
		return
	}
	for _, k := range persisted.Keys {
		st.ConfigurationKeys.Set(k, true)
	}
}
