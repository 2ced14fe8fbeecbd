package game

import (
	"fmt"
	"sync"
	"time"

	"tapsync/backend/internal"
	"tapsync/backend/internal/catalog"
	"tapsync/backend/internal/config"
)

// fakeDispatcher records every outbound notification so transitions can be
// asserted without a live transport.
type fakeDispatcher struct {
	mu     sync.Mutex
	events []fakeEvent
}

type fakeEvent struct {
	Target string // "conn:<id>" or "room:<id>"
	Event  string
	Data   any
}

func (f *fakeDispatcher) SendToConnection(connId string, event string, data any) {
	f.record("conn:"+connId, event, data)
}

func (f *fakeDispatcher) SendToRoom(roomId string, event string, data any) {
	f.record("room:"+roomId, event, data)
}

func (f *fakeDispatcher) JoinRoomChannel(connId string, roomId string)  {}
func (f *fakeDispatcher) LeaveRoomChannel(connId string, roomId string) {}

func (f *fakeDispatcher) record(target, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fakeEvent{Target: target, Event: event, Data: data})
}

func (f *fakeDispatcher) eventsOfType(event string) []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeEvent, 0)
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeDispatcher) countOfType(event string) int {
	return len(f.eventsOfType(event))
}

func (f *fakeDispatcher) lastOfType(event string) (fakeEvent, bool) {
	all := f.eventsOfType(event)
	if len(all) == 0 {
		return fakeEvent{}, false
	}
	return all[len(all)-1], true
}

// testConfig keeps every timer short enough for tests to wait them out.
func testConfig() config.Config {
	return config.Config{
		Countdown:      40 * time.Millisecond,
		ReconnectGrace: 80 * time.Millisecond,
		TurnPause:      10 * time.Millisecond,
		RoundPause:     10 * time.Millisecond,
	}
}

// studioSymbols is exactly one board's worth, so the STUDIO pool is a
// permutation of these nine tokens.
var studioSymbols = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}

func testCatalog() *catalog.Catalog {
	return catalog.New(
		catalog.Template{
			Id:         "STUDIO",
			MaxPlayers: 3,
			Mode:       internal.ModeMatch,
			Symbols:    studioSymbols,
		},
		catalog.Template{
			Id:         "ARCADE",
			MaxPlayers: 4,
			Mode:       internal.ModeSignal,
		},
		catalog.Template{
			Id:          "PACKED",
			MaxPlayers:  2,
			Mode:        internal.ModeMatch,
			StartPolicy: internal.StartFullRoom,
		},
		catalog.Template{
			Id:         "TINY",
			MaxPlayers: 2,
			Mode:       internal.ModeMatch,
			Symbols:    []string{"X", "Y", "Z"},
		},
	)
}

func newTestRegistry() (*Registry, *fakeDispatcher) {
	dispatch := &fakeDispatcher{}
	return NewRegistry(testCatalog(), dispatch, testConfig()), dispatch
}

// joinPlayers joins n fresh connections to a room and returns their conn ids.
func joinPlayers(g *Registry, roomId string, n int) ([]string, error) {
	connIds := make([]string, 0, n)
	for i := 0; i < n; i++ {
		connId := fmt.Sprintf("conn-%d", i+1)
		if err := g.HandleJoin(connId, roomId, "", fmt.Sprintf("player-%d", i+1)); err != nil {
			return connIds, err
		}
		connIds = append(connIds, connId)
	}
	return connIds, nil
}

// readyAll marks every joined connection ready.
func readyAll(g *Registry, connIds []string) {
	for _, connId := range connIds {
		g.HandleSetReady(connId, true)
	}
}

func roomPhase(g *Registry, roomId string) internal.GamePhase {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return internal.PhaseEnded
	}
	room.Mu.RLock()
	defer room.Mu.RUnlock()
	return room.Phase
}

func persistentId(g *Registry, roomId, connId string) string {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return ""
	}
	room.Mu.RLock()
	defer room.Mu.RUnlock()
	if p := room.PlayerByConnection(connId); p != nil {
		return p.PersistentId
	}
	return ""
}

func connOf(g *Registry, roomId, persistentId string) string {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return ""
	}
	room.Mu.RLock()
	defer room.Mu.RUnlock()
	if p := room.PlayerByPersistentId(persistentId); p != nil {
		return p.ConnectionId
	}
	return ""
}

func playerCount(g *Registry, roomId string) int {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return 0
	}
	room.Mu.RLock()
	defer room.Mu.RUnlock()
	return len(room.Players)
}

// currentTurn reports the open turn number of a match room, or -1 when no turn
// is accepting picks (or the room is gone).
func currentTurn(g *Registry, roomId string) int {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return -1
	}
	room.Mu.RLock()
	defer room.Mu.RUnlock()
	if room.Turn == nil || room.Turn.Resolved {
		return -1
	}
	return room.Turn.Number
}

type roundView struct {
	Number   int
	SourceId string
	TargetId string
	Expected string
	Bonus    bool
	Pieces   int
}

// currentRound snapshots the open round of a signal room.
func currentRound(g *Registry, roomId string) (roundView, bool) {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return roundView{}, false
	}
	room.Mu.RLock()
	defer room.Mu.RUnlock()
	if room.Round == nil || !room.Round.Active {
		return roundView{}, false
	}
	return roundView{
		Number:   room.Round.Number,
		SourceId: room.Round.SourceId,
		TargetId: room.Round.TargetId,
		Expected: room.Round.ExpectedSymbol,
		Bonus:    room.Round.Bonus,
		Pieces:   len(room.Pieces),
	}, true
}

// driveToActive walks a room from lobby to the active phase: everyone ready,
// countdown expiry, everyone loaded.
func driveToActive(g *Registry, roomId string, connIds []string) bool {
	readyAll(g, connIds)
	deadline := time.Now().Add(2 * time.Second)
	for roomPhase(g, roomId) != internal.PhaseLoading {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, connId := range connIds {
		g.HandleAssetsLoaded(connId)
	}
	return roomPhase(g, roomId) == internal.PhaseActive
}
