package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/config"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v16"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/ocpp/v201"
	"github.com/weilun-shrimp/ocpp-fleet-simulator/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "config.json", "path to fleet configuration file")
	flag.Parse()

	log := newLogger()

	cfgStore, err := config.Load(*configPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg := cfgStore.Current()
	log.Info().
		Int("templateCount", len(cfg.StationTemplateUrls)).
		Str("supervisionUrlDistribution", string(cfg.SupervisionUrlDistribution)).
		Msg("ocpp fleet simulator starting")

	v16Service, err := v16.NewService()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build OCPP 1.6 service")
	}
	v201Service, err := v201.NewService()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build OCPP 2.0.1 service")
	}

	sup := supervisor.New(cfgStore, v16Service, v201Service, log)
	if err := sup.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start fleet")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	sup.Stop()
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
}
