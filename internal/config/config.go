// Package config implements ConfigStore: the top-level fleet configuration
// file (spec.md §6 "Environment & top-level configuration"), loaded with
// viper and watched with fsnotify so a `change` event can trigger the
// registered reload callback (spec.md §4.7's start() behavior).
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// SupervisionURLDistribution selects how a station's supervision URL is
// chosen out of the configured pool (spec.md §4.7).
type SupervisionURLDistribution string

const (
	DistributionRoundRobin         SupervisionURLDistribution = "ROUND_ROBIN"
	DistributionRandom             SupervisionURLDistribution = "RANDOM"
	DistributionChargingStationAffinity SupervisionURLDistribution = "CHARGING_STATION_AFFINITY"
)

// StationTemplateURL names one template file and how many stations to
// spawn from it.
type StationTemplateURL struct {
	File              string `mapstructure:"file"`
	NumberOfStations  int    `mapstructure:"numberOfStations"`
}

// WorkerConfig controls WorkerHost pooling (spec.md §4.4).
type WorkerConfig struct {
	ProcessType          string `mapstructure:"processType"` // workerSet, staticPool, dynamicPool
	ElementsPerWorker    int    `mapstructure:"elementsPerWorker"`
	ElementStartDelay    int    `mapstructure:"elementStartDelay"`
	WorkerStartDelay     int    `mapstructure:"workerStartDelay"`
	PoolMinSize          int    `mapstructure:"poolMinSize"`
	PoolMaxSize          int    `mapstructure:"poolMaxSize"`
	PoolMaxInactiveTime  int    `mapstructure:"poolMaxInactiveTime"`
	RestartWorkerOnError bool   `mapstructure:"restartWorkerOnError"`
}

// UIServerConfig controls the control-plane listener (spec.md §4.6).
type UIServerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	ApplicationProtocol string `mapstructure:"applicationProtocol"` // ws, http, or both
	ListenAddress       string `mapstructure:"listenAddress"`
	AuthEnabled         bool   `mapstructure:"authEnabled"`
	AuthUsername        string `mapstructure:"authUsername"`
	AuthPassword        string `mapstructure:"authPassword"`
}

// PerformanceStorageConfig is a contract-only stub: spec.md scopes real
// persistence out, so this only names which Sink implementation to wire
// (see internal/perf).
type PerformanceStorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // "log" is the only built-in Sink
}

// LogConfig controls the base zerolog logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// Config is the parsed top-level fleet configuration.
type Config struct {
	SupervisionUrls            []string                   `mapstructure:"supervisionUrls"`
	SupervisionUrlDistribution SupervisionURLDistribution `mapstructure:"supervisionUrlDistribution"`
	StationTemplateUrls        []StationTemplateURL       `mapstructure:"stationTemplateUrls"`
	Log                        LogConfig                  `mapstructure:"log"`
	Worker                     WorkerConfig               `mapstructure:"worker"`
	UIServer                   UIServerConfig             `mapstructure:"uiServer"`
	PerformanceStorage         PerformanceStorageConfig   `mapstructure:"performanceStorage"`
	AutoReconnectMaxRetries    int                        `mapstructure:"autoReconnectMaxRetries"`
	RegistrationMaxRetries     int                        `mapstructure:"registrationMaxRetries"`
	ConnectionTimeout          int                        `mapstructure:"connectionTimeout"` // seconds
	ReconnectExponentialDelay  bool                       `mapstructure:"reconnectExponentialDelay"`
	IdTags                     []string                   `mapstructure:"idTags"`
}

// deprecatedAliases maps an old top-level key to its replacement, so that
// Load can warn rather than silently ignore stale configuration files.
var deprecatedAliases = map[string]string{
	"chargingStationTemplateUrls": "stationTemplateUrls",
	"supervisionURLs":             "supervisionUrls",
}

// Store owns the loaded Config and the fsnotify-driven reload subscription.
type Store struct {
	mu     sync.RWMutex
	v      *viper.Viper
	cfg    Config
	log    zerolog.Logger
	onChange func(Config)
}

func defaults(v *viper.Viper) {
	v.SetDefault("supervisionUrlDistribution", DistributionChargingStationAffinity)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("worker.processType", "workerSet")
	v.SetDefault("worker.elementsPerWorker", 50)
	v.SetDefault("worker.elementStartDelay", 0)
	v.SetDefault("worker.workerStartDelay", 0)
	v.SetDefault("worker.poolMinSize", 1)
	v.SetDefault("worker.poolMaxSize", 16)
	v.SetDefault("worker.poolMaxInactiveTime", 60000)
	v.SetDefault("worker.restartWorkerOnError", true)
	v.SetDefault("uiServer.enabled", true)
	v.SetDefault("uiServer.applicationProtocol", "ws")
	v.SetDefault("uiServer.listenAddress", ":8080")
	v.SetDefault("performanceStorage.enabled", true)
	v.SetDefault("performanceStorage.type", "log")
	v.SetDefault("autoReconnectMaxRetries", -1)
	v.SetDefault("registrationMaxRetries", -1)
	v.SetDefault("connectionTimeout", 30)
	v.SetDefault("reconnectExponentialDelay", false)
	v.SetDefault("idTags", []string{"TAG-1", "TAG-2", "TAG-3"})
}

// Load reads path (any viper-supported format; spec.md's source uses JSON)
// into a Store, applying defaults and warning on deprecated aliases.
func Load(path string, log zerolog.Logger) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	s := &Store{v: v, log: log.With().Str("component", "config-store").Logger()}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	for old, replacement := range deprecatedAliases {
		if s.v.IsSet(old) {
			s.log.Warn().Str("deprecated_key", old).Str("use_instead", replacement).Msg("deprecated configuration key")
			s.v.Set(replacement, s.v.Get(old))
		}
	}

	var cfg Config
	if err := s.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if !validDistribution(cfg.SupervisionUrlDistribution) {
		s.log.Warn().Str("value", string(cfg.SupervisionUrlDistribution)).Msg("unknown supervisionUrlDistribution, falling back to CHARGING_STATION_AFFINITY")
		cfg.SupervisionUrlDistribution = DistributionChargingStationAffinity
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func validDistribution(d SupervisionURLDistribution) bool {
	switch d {
	case DistributionRoundRobin, DistributionRandom, DistributionChargingStationAffinity:
		return true
	default:
		return false
	}
}

// Current returns a copy of the currently loaded configuration.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Watch starts an fsnotify watch on the config file; onChange fires with
// the freshly reloaded Config after every write/rename event.
func (s *Store) Watch(onChange func(Config)) error {
	s.onChange = onChange
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if err := s.reload(); err != nil {
			s.log.Error().Err(err).Msg("failed to reload configuration")
			return
		}
		if s.onChange != nil {
			s.onChange(s.Current())
		}
	})
	s.v.WatchConfig()
	return nil
}

// SupervisionURLFor resolves station index (1-based) to a supervision URL
// per the configured distribution policy (spec.md §4.7).
func SupervisionURLFor(urls []string, distribution SupervisionURLDistribution, index int, rand func(n int) int) string {
	if len(urls) == 0 {
		return ""
	}
	switch distribution {
	case DistributionRandom:
		return urls[rand(len(urls))]
	default: // ROUND_ROBIN and CHARGING_STATION_AFFINITY are equivalent and stable
		return urls[(index-1)%len(urls)]
	}
}

// String renders a SupervisionURLDistribution back to its canonical
// upper-snake wire form, tolerating lowercase/legacy spellings.
func (d SupervisionURLDistribution) String() string {
	return strings.ToUpper(string(d))
}
