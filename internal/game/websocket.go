package game

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"tapsync/backend/internal"
)

// =============================================================================
// WEBSOCKET CONNECTION HANDLING
// =============================================================================

// WSHandler upgrades connections and pumps their messages into the registry.
type WSHandler struct {
	registry *Registry
	dispatch *WSDispatcher
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *Registry, dispatch *WSDispatcher) *WSHandler {
	return &WSHandler{
		registry: registry,
		dispatch: dispatch,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket joins the connection to the room in the URL path. Query
// params: name (display name), pid (persistent id, for reconnects).
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[HandleWebSocket] upgrade failed:", err)
		return
	}

	roomId := mux.Vars(r)["roomId"]
	name := r.URL.Query().Get("name")
	persistentId := r.URL.Query().Get("pid")
	connId := uuid.NewString()

	h.dispatch.Register(connId, conn)

	if err := h.registry.HandleJoin(connId, roomId, persistentId, name); err != nil {
		log.Printf("[HandleWebSocket] conn=%s join to room %s rejected: %v", connId, roomId, err)
		h.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    errorCode(err),
			Message: err.Error(),
		})
		h.dispatch.Unregister(connId)
		conn.Close()
		return
	}

	go h.readLoop(connId, conn)
}

// readLoop processes inbound messages for one connection until it drops.
func (h *WSHandler) readLoop(connId string, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		h.registry.HandleDisconnect(connId)
		h.dispatch.Unregister(connId)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[readLoop] conn=%s read error: %v", connId, err)
			return
		}

		var msg internal.Message[json.RawMessage]
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[readLoop] conn=%s failed to parse message: %v", connId, err)
			continue
		}

		switch msg.Type {
		case "set_ready":
			var ready bool
			if err := json.Unmarshal(msg.Data, &ready); err != nil {
				log.Printf("[readLoop] conn=%s bad set_ready payload: %v", connId, err)
				continue
			}
			h.registry.HandleSetReady(connId, ready)
		case "assets_loaded":
			h.registry.HandleAssetsLoaded(connId)
		case "select_symbol":
			var symbol string
			if err := json.Unmarshal(msg.Data, &symbol); err != nil {
				log.Printf("[readLoop] conn=%s bad select_symbol payload: %v", connId, err)
				continue
			}
			h.registry.HandleSelection(connId, symbol)
		case "leave":
			h.registry.HandleLeave(connId)
			return
		case "force_activate":
			h.registry.HandleForceActivate(connId)
		case "force_reset":
			h.registry.HandleForceReset(connId)
		default:
			log.Printf("[readLoop] conn=%s unknown message type: %s", connId, msg.Type)
		}
	}
}
