package game

import (
	"fmt"
	"log"
	"math/rand"
	"sync"

	"tapsync/backend/internal"
	"tapsync/backend/internal/catalog"
	"tapsync/backend/internal/config"
)

// =============================================================================
// ROOM REGISTRY
// =============================================================================

// Registry owns every live room. No room exists outside it, and every inbound
// event enters the engine through one of its handler methods. It is created at
// process start and injected wherever rooms are needed; there is no package
// global.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*internal.Room
	byConn map[string]string // connectionId -> roomId

	catalog  *catalog.Catalog
	dispatch Dispatcher
	cfg      config.Config
}

func NewRegistry(cat *catalog.Catalog, dispatch Dispatcher, cfg config.Config) *Registry {
	return &Registry{
		rooms:    make(map[string]*internal.Room),
		byConn:   make(map[string]string),
		catalog:  cat,
		dispatch: dispatch,
		cfg:      cfg,
	}
}

// CreateRoom allocates a fresh room from a theme template.
func (g *Registry) CreateRoom(themeId string) (string, error) {
	template, ok := g.catalog.GetTemplate(themeId)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, themeId)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	roomId := generateRoomCode()
	for _, exists := g.rooms[roomId]; exists; _, exists = g.rooms[roomId] {
		roomId = generateRoomCode()
	}

	room := &internal.Room{
		Id:          roomId,
		Theme:       template.Id,
		DisplayName: template.DisplayName,
		MaxPlayers:  template.MaxPlayers,
		Mode:        template.Mode,
		StartPolicy: template.StartPolicy,
		Palette:     template.Palette,
		Phase:       internal.PhaseLobby,
		Players:     make([]*internal.Player, 0, template.MaxPlayers),
		Matched:     make([]string, 0),
		Pieces:      make([]string, 0),
	}
	g.rooms[roomId] = room

	log.Printf("[CreateRoom] created room %s (theme=%s mode=%s maxPlayers=%d)",
		roomId, room.Theme, room.Mode, room.MaxPlayers)
	return roomId, nil
}

// FindRoom looks a room up by id. A missing id is a normal outcome, reported
// as ErrRoomNotFound for callers to branch on.
func (g *Registry) FindRoom(roomId string) (*internal.Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[roomId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomId)
	}
	return room, nil
}

// FindJoinableRoom returns an existing lobby-phase room with spare capacity
// for the given theme, or nil when the caller should create one.
func (g *Registry) FindJoinableRoom(themeId string) *internal.Room {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, room := range g.rooms {
		room.Mu.RLock()
		joinable := room.Phase == internal.PhaseLobby &&
			room.Theme == normalizeTheme(g.catalog, themeId) &&
			len(room.Players) < room.MaxPlayers
		room.Mu.RUnlock()
		if joinable {
			return room
		}
	}
	return nil
}

// DeleteRoom tears a room down: cancels its timers, unsubscribes every
// connection and removes it from the registry. Safe to call on a missing id.
func (g *Registry) DeleteRoom(roomId string) {
	g.mu.Lock()
	room, ok := g.rooms[roomId]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.rooms, roomId)
	for connId, mapped := range g.byConn {
		if mapped == roomId {
			delete(g.byConn, connId)
		}
	}
	g.mu.Unlock()

	room.Mu.Lock()
	clearCountdown(room)
	connIds := make([]string, 0, len(room.Players))
	for _, player := range room.Players {
		clearRemoval(player)
		if player.ConnectionId != "" {
			connIds = append(connIds, player.ConnectionId)
		}
	}
	room.Mu.Unlock()

	for _, connId := range connIds {
		g.dispatch.LeaveRoomChannel(connId, roomId)
	}
	log.Printf("[DeleteRoom] room %s removed from registry", roomId)
}

// roomByConn resolves the room an active connection is bound to.
func (g *Registry) roomByConn(connId string) *internal.Room {
	g.mu.RLock()
	roomId, ok := g.byConn[connId]
	g.mu.RUnlock()
	if !ok {
		return nil
	}
	room, err := g.FindRoom(roomId)
	if err != nil {
		return nil
	}
	return room
}

func (g *Registry) bindConn(connId, roomId string) {
	g.mu.Lock()
	g.byConn[connId] = roomId
	g.mu.Unlock()
}

func (g *Registry) unbindConn(connId string) {
	g.mu.Lock()
	delete(g.byConn, connId)
	g.mu.Unlock()
}

// RoomCount reports how many rooms are live, for the health endpoint.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func normalizeTheme(cat *catalog.Catalog, themeId string) string {
	if t, ok := cat.GetTemplate(themeId); ok {
		return t.Id
	}
	return themeId
}

// generateRoomCode mints a 6-digit room code.
func generateRoomCode() string {
	return fmt.Sprintf("%06d", 100000+rand.Intn(900000))
}
