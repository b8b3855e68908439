package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/scoreboard/go/internal/api"
	"github.com/mcdev12/scoreboard/go/internal/config"
	"github.com/mcdev12/scoreboard/go/internal/scores"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	handler := api.NewHandler(services.Rounds, services.Engine, services.Live, services.BuildID)
	router := api.NewRouter(handler,
		services.Live.RegisterRoutes,
		registerConnect(services),
		api.StaticFiles(cfg.StaticDir),
	)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(c.Handler(router), &http2.Server{}),
	}
}

func registerConnect(services *Services) api.Mount {
	return func(r chi.Router) {
		path, handler := scores.NewServiceHandler(services.Scores)
		r.Mount(path, handler)
	}
}
