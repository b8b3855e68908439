package main

import (
	"github.com/mcdev12/scoreboard/go/internal/config"
	"github.com/mcdev12/scoreboard/go/internal/livesync"
	"github.com/mcdev12/scoreboard/go/internal/rounds"
	"github.com/mcdev12/scoreboard/go/internal/scores"
)

type Services struct {
	BuildID string
	Rounds  *rounds.App
	Scores  *scores.Service
	Engine  *scores.Engine
	Live    *livesync.Service
}

func setupServices(cfg *config.Config, store rounds.Store, source livesync.ChangeSource) *Services {
	// Store layer → App layer → Service layer
	buildID := cfg.ResolveBuildID()

	roundsApp := rounds.NewApp(store, nil)
	engine := scores.NewEngine(roundsApp, nil)
	scoresService := scores.NewService(engine)
	live := livesync.NewService(liveConfig(cfg, buildID), roundsApp, source)

	return &Services{
		BuildID: buildID,
		Rounds:  roundsApp,
		Scores:  scoresService,
		Engine:  engine,
		Live:    live,
	}
}
