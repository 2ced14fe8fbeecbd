package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"tapsync/backend/internal"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// Apply CORS middleware
	r.Use(s.corsMiddleware)

	r.HandleFunc("/", s.HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/rooms-available", s.GetRoomToJoin).Methods(http.MethodGet)
	r.HandleFunc("/rooms", s.CreateRoomHandler).Methods(http.MethodPost)

	r.HandleFunc("/ws/{roomId}", s.ws.HandleWebSocket)

	return r
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "false")

		// If it's a websocket upgrade, skip further CORS checks
		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"rooms":  s.registry.RoomCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// GetRoomToJoin finds a joinable lobby for the requested theme, creating one
// when none exists (self-service matchmaking).
func (s *Server) GetRoomToJoin(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()

	theme := r.URL.Query().Get("theme")
	if theme == "" {
		theme = "DEFAULT"
	}

	var resp internal.Response
	if room := s.registry.FindJoinableRoom(theme); room != nil {
		resp = internal.Response{
			StatusCode:    http.StatusOK,
			RespStartTime: startTime,
			Data:          room.Id,
		}
	} else {
		roomId, err := s.registry.CreateRoom(theme)
		if err != nil {
			resp = internal.Response{
				StatusCode:    http.StatusNotFound,
				RespStartTime: startTime,
				Data:          err.Error(),
			}
		} else {
			resp = internal.Response{
				StatusCode:    http.StatusCreated,
				RespStartTime: startTime,
				Data:          roomId,
			}
		}
	}

	endTime := time.Now().UnixMilli()
	resp.RespEndTime = endTime
	resp.NetRespTime = endTime - startTime

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Error encoding response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// CreateRoomHandler allocates a fresh room for an explicit theme.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Theme == "" {
		http.Error(w, "theme is required", http.StatusBadRequest)
		return
	}

	roomId, err := s.registry.CreateRoom(body.Theme)
	if err != nil {
		log.Printf("[CreateRoomHandler] create failed for theme %s: %v", body.Theme, err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]string{"room_id": roomId}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
