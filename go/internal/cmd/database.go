package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/changefeed"
	"github.com/mcdev12/scoreboard/go/internal/config"
	"github.com/mcdev12/scoreboard/go/internal/dbconfig"
	"github.com/mcdev12/scoreboard/go/internal/livesync"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
)

func setupDatabase(dbConfig dbconfig.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("database", dbConfig.String()).Msg("connected to database")
	return database, nil
}

// openStore opens the configured round store. The returned func releases it.
func openStore(cfg *config.Config) (rounds.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverBadger:
		store, err := rounds.NewBadgerStore(rounds.BadgerConfig{Path: cfg.BadgerPath})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.BadgerPath).Msg("opened badger round store")
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close badger store")
			}
		}, nil

	default:
		dbConfig := dbconfig.NewConfigFromEnv()
		database, err := setupDatabase(dbConfig)
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rounds.EnsureSchema(ctx, database); err != nil {
			database.Close()
			return nil, nil, err
		}

		listenerCfg := rounds.DefaultListenerConfig()
		listenerCfg.DatabaseURL = dbConfig.DSN()
		store := rounds.NewPostgresStore(database, listenerCfg)
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close database")
			}
		}, nil
	}
}

// openChangeSource picks where live sync reads round changes from: the store
// itself or the NATS relay.
func openChangeSource(cfg *config.Config, store rounds.Store) (livesync.ChangeSource, func(), error) {
	if cfg.ChangefeedSource != config.ChangefeedSourceNATS {
		return store, func() {}, nil
	}

	natsCfg := changefeed.DefaultConfig()
	natsCfg.URL = cfg.NATSURL
	nc, err := changefeed.Connect(natsCfg)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("url", cfg.NATSURL).Msg("reading round changes from NATS")

	return changefeed.NewSubscriber(nc, natsCfg), func() {
		if err := nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}, nil
}
