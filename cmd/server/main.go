package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/api"
	"github.com/marginlens/reconciler/internal/config"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	app, err := buildApp(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}
	defer app.db.Close()

	router := api.NewRouter(app.orders, app.fees, app.costs, app.attrib, app.etl, log)

	log.Info().Str("port", cfg.Port).Str("db", cfg.DBPath).
		Msg("marketplace fee reconciler listening")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
