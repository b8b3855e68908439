package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scoreboard/go/internal/config"
	"github.com/mcdev12/scoreboard/go/internal/livesync"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

// setupLogging writes human readable logs to stderr at the given level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		return
	}
	if lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
}

func liveConfig(cfg *config.Config, buildID string) livesync.Config {
	live := livesync.DefaultConfig()

	live.ConnectionConfig.WriteTimeout = cfg.Live.WriteTimeout
	live.ConnectionConfig.ReadTimeout = cfg.Live.ReadTimeout
	live.ConnectionConfig.PingInterval = cfg.Live.PingInterval
	live.ConnectionConfig.MaxMessageSize = cfg.Live.MaxMessageSize
	live.ConnectionConfig.SendBuffer = cfg.Live.SendBuffer

	live.SyncConfig.DebounceWindow = cfg.Live.DebounceWindow
	live.SyncConfig.Version = buildID
	return live
}
