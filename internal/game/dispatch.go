package game

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"tapsync/backend/internal"
)

// =============================================================================
// NOTIFICATION DISPATCHER
// =============================================================================

// Dispatcher is the boundary between the room engine and the transport.
// Sends are best-effort fire-and-forget; the engine never blocks on them and
// never learns about delivery failures.
type Dispatcher interface {
	SendToConnection(connId string, event string, data any)
	SendToRoom(roomId string, event string, data any)
	JoinRoomChannel(connId string, roomId string)
	LeaveRoomChannel(connId string, roomId string)
}

// wsClient wraps a websocket connection with a write lock, since gorilla
// connections allow only one concurrent writer.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) safeWriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// WSDispatcher fans out engine notifications over live websocket connections,
// keyed by connection id and by room subscription.
type WSDispatcher struct {
	mu    sync.RWMutex
	conns map[string]*wsClient
	rooms map[string]map[string]struct{} // roomId -> connection ids
}

func NewWSDispatcher() *WSDispatcher {
	return &WSDispatcher{
		conns: make(map[string]*wsClient),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Register binds a live connection to its id. Called once per upgrade.
func (d *WSDispatcher) Register(connId string, conn *websocket.Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[connId] = &wsClient{conn: conn}
}

// Unregister drops a connection and all of its room subscriptions.
func (d *WSDispatcher) Unregister(connId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, connId)
	for roomId, subs := range d.rooms {
		delete(subs, connId)
		if len(subs) == 0 {
			delete(d.rooms, roomId)
		}
	}
}

func (d *WSDispatcher) SendToConnection(connId string, event string, data any) {
	d.mu.RLock()
	client := d.conns[connId]
	d.mu.RUnlock()

	if client == nil {
		return
	}
	msg := internal.Message[any]{Type: event, Data: data}
	if err := client.safeWriteJSON(msg); err != nil {
		log.Printf("[WSDispatcher.SendToConnection] conn=%s event=%s write failed: %v", connId, event, err)
	}
}

func (d *WSDispatcher) SendToRoom(roomId string, event string, data any) {
	// Snapshot subscribers first, write with no dispatcher lock held.
	d.mu.RLock()
	clients := make(map[string]*wsClient, len(d.rooms[roomId]))
	for connId := range d.rooms[roomId] {
		if client := d.conns[connId]; client != nil {
			clients[connId] = client
		}
	}
	d.mu.RUnlock()

	msg := internal.Message[any]{Type: event, Data: data}
	for connId, client := range clients {
		if err := client.safeWriteJSON(msg); err != nil {
			log.Printf("[WSDispatcher.SendToRoom] room=%s conn=%s event=%s write failed: %v", roomId, connId, event, err)
		}
	}
}

func (d *WSDispatcher) JoinRoomChannel(connId string, roomId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs, ok := d.rooms[roomId]
	if !ok {
		subs = make(map[string]struct{})
		d.rooms[roomId] = subs
	}
	subs[connId] = struct{}{}
}

func (d *WSDispatcher) LeaveRoomChannel(connId string, roomId string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if subs, ok := d.rooms[roomId]; ok {
		delete(subs, connId)
		if len(subs) == 0 {
			delete(d.rooms, roomId)
		}
	}
}
