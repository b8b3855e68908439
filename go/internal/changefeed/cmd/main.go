package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/changefeed"
	"github.com/mcdev12/scoreboard/go/internal/dbconfig"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
)

// Relays Postgres round change notifications onto NATS.
func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	// DB config
	cfg := dbconfig.NewConfigFromEnv()
	dsn := cfg.DSN()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	// NATS publisher
	natsCfg := changefeed.DefaultConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		natsCfg.URL = url
	}
	nc, err := changefeed.Connect(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to NATS")
	}
	defer nc.Close()
	publisher := changefeed.NewPublisher(nc, natsCfg)

	listenerCfg := rounds.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dsn
	store := rounds.NewPostgresStore(db, listenerCfg)

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := changefeed.NewRelayer(store, publisher)

	// health endpoint
	healthAddr := os.Getenv("RELAY_HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = ":8081"
	}
	mux := http.NewServeMux()
	mux.Handle("/health", changefeed.NewHealthChecker(relay, db, nc))
	healthServer := &http.Server{Addr: healthAddr, Handler: mux}
	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()
	defer healthServer.Close()

	log.Info().
		Str("subject_prefix", natsCfg.SubjectPrefix).
		Str("health_addr", healthAddr).
		Msg("starting change relay")
	if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("relay exited unexpectedly")
		return
	}
	if err := nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
	log.Info().Msg("graceful shutdown complete")
}
