package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"hati/internal/bus"
	"hati/internal/config"
	"hati/internal/exchange"
	"hati/internal/metrics"
	"hati/internal/net"
	"hati/internal/tx"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the YAML config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setupLogging(cfg.Logging)

	stats := metrics.NewCollector()
	events := bus.New()

	// Setup the dispatcher over the per-pair book actors. Books with
	// persisted state come back immediately through recovery.
	exch := exchange.New(cfg.ExchangeConfig(), exchange.Deps{
		Builder:  tx.NewBuilder(),
		Utx:      tx.NewMemPool(),
		Channels: tx.LogBroadcaster{},
		Events:   events,
		Stats:    stats,
	})
	if err := exch.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting exchange")
	}

	t, ctx := tomb.WithContext(ctx)
	if cfg.Metrics.Enabled {
		stats.Serve(t, cfg.Metrics.Address)
	}

	srv := net.New(cfg.Server.Address, cfg.Server.Port, exch)
	go srv.Run(ctx)

	// Block on running the server.
	<-ctx.Done()

	exch.Shutdown()
	events.Close()
	t.Kill(nil)
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
