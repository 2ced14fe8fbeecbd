package main

import (
	"errors"
	"log"
	"net/http"

	"tapsync/backend/internal/catalog"
	"tapsync/backend/internal/config"
	"tapsync/backend/internal/game"
	"tapsync/backend/internal/server"
)

func main() {
	cfg := config.Load()

	cat, err := catalog.LoadDir(cfg.ThemesDir)
	if err != nil {
		log.Fatalf("failed to load theme catalog: %v", err)
	}

	dispatch := game.NewWSDispatcher()
	registry := game.NewRegistry(cat, dispatch, cfg)
	ws := game.NewWSHandler(registry, dispatch)

	srv := server.NewServer(cfg, registry, ws)

	log.Printf("listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}
