package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/spreadwatch/spreadwatch/api"
	"github.com/spreadwatch/spreadwatch/config"
	"github.com/spreadwatch/spreadwatch/internal/exchange"
	"github.com/spreadwatch/spreadwatch/internal/ingest"
	"github.com/spreadwatch/spreadwatch/internal/models"
	"github.com/spreadwatch/spreadwatch/internal/quotestore"
	"github.com/spreadwatch/spreadwatch/internal/refdata"
	"github.com/spreadwatch/spreadwatch/internal/storage"
)

func main() {
	// ── 1. Logger setup
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// ── 2. Root context setup
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3. Config
	cfg := config.Load()
	log.Info().Msg("config loaded")

	// ── 4. Durable storage (optional)
	var archive storage.Archive
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer pg.Close()
		archive = pg
		log.Info().Msg("durable storage connected")
	} else {
		log.Warn().Msg("DATABASE_URL not set, running without durable storage")
	}

	// ── 5. Reference data
	var (
		exchanges []models.Exchange
		pairs     []models.TradingPair
		err       error
	)
	if archive != nil {
		if exchanges, err = archive.LoadExchanges(ctx); err != nil {
			log.Fatal().Err(err).Msg("loading exchanges failed")
		}
		if pairs, err = archive.LoadTradingPairs(ctx); err != nil {
			log.Fatal().Err(err).Msg("loading trading pairs failed")
		}
	} else {
		exchanges, pairs = refdata.Seed()
	}
	ref, err := refdata.New(exchanges, pairs)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid reference data")
	}
	log.Info().
		Int("exchanges", len(exchanges)).
		Strs("pairs", ref.Symbols()).
		Msg("reference data loaded")

	// ── 6. Quote store + connectors
	store := quotestore.New()
	sink := exchange.NewSink(store, archive)
	defer sink.Close()

	connectors := []exchange.Connector{
		exchange.NewBinanceConnector(ref, sink, cfg.ReconnectDelay),
		exchange.NewCoinbaseConnector(ref, sink, cfg.ReconnectDelay),
		exchange.NewKrakenConnector(ref, sink, cfg.ReconnectDelay),
	}

	// ── 7. Ingestion supervisor
	supervisor := ingest.New(connectors, store, archive, cfg.PurgeInterval, cfg.Retention)
	if err := supervisor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("ingestion failed to start")
	}
	defer supervisor.Stop()

	// ── 8. Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Spreadwatch",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	// ── 9. Routes
	api.SetupRoutes(app, store, ref, cfg)

	// ── 10. Graceful shutdown listener
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// ── 11. Start server (blocking)
	log.Info().Str("port", cfg.AppPort).Msg("starting server")
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}
