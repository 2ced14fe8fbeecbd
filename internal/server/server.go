package server

import (
	"fmt"
	"net/http"
	"time"

	"tapsync/backend/internal/config"
	"tapsync/backend/internal/game"
)

type Server struct {
	port     string
	registry *game.Registry
	ws       *game.WSHandler
}

func NewServer(cfg config.Config, registry *game.Registry, ws *game.WSHandler) *http.Server {
	s := &Server{
		port:     cfg.Port,
		registry: registry,
		ws:       ws,
	}

	// No read/write timeouts: the websocket route holds connections open
	// for the lifetime of a room.
	return &http.Server{
		Addr:        fmt.Sprintf(":%s", s.port),
		Handler:     s.RegisterRoutes(),
		IdleTimeout: time.Minute,
	}
}
