// Package supervisor implements the Supervisor: the composition root that
// loads configuration and templates, spawns stations into WorkerHosts, and
// owns the fleet's start/stop/reload sequencing (spec.md §4.7).
package supervisor

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/atg"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/config"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/controlbus"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/hashid"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/idtag"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/perf"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/station"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/template"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/uiserver"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/worker"
)

// Supervisor is the fleet's composition root: one per process.
type Supervisor struct {
	cfgStore  *config.Store
	templates *template.Store
	bus       *controlbus.Bus
	manager   *worker.Manager
	ui        *uiserver.Server
	sink      perf.Sink
	log       zerolog.Logger

	v16Service  *v16.Service
	v201Service *v201.Service

	mu        sync.Mutex
	stationIdx int
}

// New constructs a Supervisor over an already-loaded configuration store.
// v16Service/v201Service are shared, read-only schema validators built once
// per process and handed to every Engine (spec.md §9's "per-version shared
// Validator" note, see internal/station's DESIGN.md entry).
func New(cfgStore *config.Store, v16Service *v16.Service, v201Service *v201.Service, log zerolog.Logger) *Supervisor {
	log = log.With().Str("component", "supervisor").Logger()
	cfg := cfgStore.Current()

	return &Supervisor{
		cfgStore:    cfgStore,
		templates:   template.New(log),
		bus:         controlbus.New(),
		manager:     worker.NewManager(workerConfig(cfg.Worker), time.Duration(cfg.Worker.WorkerStartDelay)*time.Millisecond, log),
		sink:        perf.New(cfg.PerformanceStorage.Enabled, cfg.PerformanceStorage.Type, log),
		log:         log,
		v16Service:  v16Service,
		v201Service: v201Service,
	}
}

func workerConfig(w config.WorkerConfig) worker.Config {
	return worker.Config{
		Mode:                 worker.Mode(w.ProcessType),
		ElementsPerWorker:    w.ElementsPerWorker,
		PoolMinSize:          w.PoolMinSize,
		PoolMaxSize:          w.PoolMaxSize,
		PoolMaxInactiveTime:  time.Duration(w.PoolMaxInactiveTime) * time.Millisecond,
		ElementStartDelay:    time.Duration(w.ElementStartDelay) * time.Millisecond,
		RestartWorkerOnError: w.RestartWorkerOnError,
	}
}

// Start implements spec.md §4.7's start(): opens UIServer and the
// performance sink, spawns every configured template's stations spaced by
// elementStartDelay, and begins watching the config file for reloads.
func (s *Supervisor) Start() error {
	cfg := s.cfgStore.Current()

	if cfg.UIServer.Enabled {
		s.ui = uiserver.New(uiserver.Config{
			ListenAddress: cfg.UIServer.ListenAddress,
			AuthEnabled:   cfg.UIServer.AuthEnabled,
			AuthUsername:  cfg.UIServer.AuthUsername,
			AuthPassword:  cfg.UIServer.AuthPassword,
		}, s.bus, nil, s.log)
		s.ui.SetLifecycle(s)
		go func() {
			if err := s.ui.ListenAndServe(); err != nil {
				s.log.Error().Err(err).Msg("uiserver exited")
			}
		}()
	}

	for _, tpl := range cfg.StationTemplateUrls {
		if err := s.spawnTemplate(tpl, cfg); err != nil {
			return fmt.Errorf("spawn template %s: %w", tpl.File, err)
		}
	}

	if err := s.cfgStore.Watch(func(config.Config) {
		s.log.Info().Msg("configuration changed, reload not yet applied to running stations")
	}); err != nil {
		s.log.Warn().Err(err).Msg("failed to watch configuration file")
	}

	return nil
}

func (s *Supervisor) spawnTemplate(ref config.StationTemplateURL, cfg config.Config) error {
	tpl, templateHash, err := s.templates.Load(ref.File)
	if err != nil {
		return err
	}

	base := strings.TrimSuffix(filepath.Base(ref.File), filepath.Ext(ref.File))

	for i := 1; i <= ref.NumberOfStations; i++ {
		index := s.nextIndex()
		hashId := hashid.StationHashID(ref.File, index, templateHash)
		chargingStationId := fmt.Sprintf("%s-%d", base, index)
		supervisionUrl := config.SupervisionURLFor(cfg.SupervisionUrls, cfg.SupervisionUrlDistribution, index, rand.Intn)
		persistPath := fmt.Sprintf("%s.%d.state.json", ref.File, index)

		// worker.Host.StartElement applies elementStartDelay pacing itself.
		if err := s.spawnStation(tpl, index, hashId, chargingStationId, supervisionUrl, templateHash, persistPath, cfg); err != nil {
			s.log.Error().Err(err).Str("chargingStationId", chargingStationId).Msg("failed to spawn station")
			continue
		}
	}
	return nil
}

func (s *Supervisor) nextIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stationIdx++
	return s.stationIdx
}

func (s *Supervisor) spawnStation(tpl *template.Template, index int, hashId, chargingStationId, supervisionUrl, templateHash, persistPath string, cfg config.Config) error {
	persisted, err := station.LoadPersistedConfig(persistPath)
	if err != nil {
		s.log.Warn().Err(err).Str("path", persistPath).Msg("failed to load persisted station configuration, using template defaults")
	}

	st, err := station.BuildStation(tpl, index, hashId, chargingStationId, supervisionUrl, templateHash, persisted)
	if err != nil {
		return err
	}

	if persisted == nil || persisted.TemplateHash != templateHash {
		if err := station.SavePersistedConfig(persistPath, templateHash, st); err != nil {
			s.log.Warn().Err(err).Str("path", persistPath).Msg("failed to persist station configuration")
		}
	}

	stopOnConnectionFailure := false
	if tpl.AutomaticTransactionGenerator != nil {
		stopOnConnectionFailure = tpl.AutomaticTransactionGenerator.StopOnConnectionFailure
	}

	engine := station.NewEngine(st, station.EngineConfig{
		ServerURL:                 fmt.Sprintf("%s/%s", supervisionUrl, chargingStationId),
		V16Service:                s.v16Service,
		V201Service:               s.v201Service,
		RegistrationMaxRetries:    cfg.RegistrationMaxRetries,
		ReconnectMaxRetries:       cfg.AutoReconnectMaxRetries,
		ConnectionTimeout:         time.Duration(cfg.ConnectionTimeout) * time.Second,
		ReconnectExponentialDelay: cfg.ReconnectExponentialDelay,
		StopOnConnectionFailure:   stopOnConnectionFailure,
		PayloadSchemaValidation:   true,
		StrictCompliance:          true,
		Logger:                    s.log,
	})

	s.bus.Register(engine)

	if tpl.AutomaticTransactionGenerator != nil && tpl.AutomaticTransactionGenerator.Enable {
		s.attachATG(engine, st, tpl, cfg)
	}

	return s.manager.Admit(hashId, engine)
}

// attachATG builds one atg.Loop per connector from the template's ATG
// block and hands each to the engine, which only starts/stops what it is
// given (internal/station/atg.go).
func (s *Supervisor) attachATG(engine *station.Engine, st *station.Station, tpl *template.Template, cfg config.Config) {
	block := tpl.AutomaticTransactionGenerator
	atgCfg := atg.Config{
		Enabled:                        true,
		MinDelayBetweenTwoTransactions: block.MinDelayBetweenTwoTransactionSeconds,
		MaxDelayBetweenTwoTransactions: block.MaxDelayBetweenTwoTransactionSeconds,
		ProbabilityOfStart:             block.ProbabilityOfStart,
		MinDuration:                    block.MinDurationSeconds,
		MaxDuration:                    block.MaxDurationSeconds,
		StopAfterHours:                 block.StopAfterHours,
		RequireAuthorize:               block.RequireAuthorize,
	}

	idTags := idtag.New(cfg.IdTags, idtag.PolicyRandom, time.Now().UnixNano())

	for _, c := range st.AllConnectors() {
		conn := station.NewATGConnector(engine, c.Id, true, true, tpl.PowerSharedByConnectors)
		loop := atg.New(c.Id, atgCfg, conn, idTags, 0, s.log)
		engine.AttachATGLoop(c.Id, loop)
	}
}

// Stop implements spec.md §4.7's shutdown ordering: ATGs stop (via
// worker.Host.StopAll -> Engine.Stop -> StopATG) before connections close,
// then the UIServer and performance sink are closed.
func (s *Supervisor) Stop() {
	s.manager.StopAll()

	if s.ui != nil {
		if err := s.ui.Close(); err != nil {
			s.log.Warn().Err(err).Msg("error closing uiserver")
		}
	}
	if err := s.templates.Close(); err != nil {
		s.log.Warn().Err(err).Msg("error closing template watcher")
	}
	if err := s.sink.Close(); err != nil {
		s.log.Warn().Err(err).Msg("error closing performance sink")
	}
}

// Bus exposes the control bus, mainly for tests and for cmd/simulator
// wiring that wants direct access without going through UIServer.
func (s *Supervisor) Bus() *controlbus.Bus {
	return s.bus
}
