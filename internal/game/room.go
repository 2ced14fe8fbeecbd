package game

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"

	"tapsync/backend/internal"
)

// =============================================================================
// ROOM MEMBERSHIP: join, reconnect, leave, disconnect
// =============================================================================

// HandleJoin binds a connection to a room. When persistentId matches a player
// still inside the reconnect grace window this is a reconnect: the slot is
// re-bound and the phase-appropriate state is replayed to that connection
// only. Otherwise it is a new join, validated against capacity and phase.
func (g *Registry) HandleJoin(connId, roomId, persistentId, name string) error {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return err
	}

	room.Mu.Lock()

	if persistentId != "" {
		if player := room.PlayerByPersistentId(persistentId); player != nil && player.Disconnected {
			g.rebindLocked(room, player, connId)
			return nil
		}
	}

	// New join.
	if room.PlayerByConnection(connId) != nil {
		room.Mu.Unlock()
		return fmt.Errorf("%w (room %s)", ErrDuplicateConnection, roomId)
	}
	if room.Phase != internal.PhaseLobby && room.Phase != internal.PhaseCountdown {
		room.Mu.Unlock()
		return fmt.Errorf("%w (room %s, phase %s)", ErrAlreadyStarted, roomId, room.Phase)
	}
	if len(room.Players) >= room.MaxPlayers {
		room.Mu.Unlock()
		return fmt.Errorf("%w (room %s, max %d)", ErrRoomFull, roomId, room.MaxPlayers)
	}

	if name == "" {
		name = "Player-" + shortId(connId)
	}
	player := &internal.Player{
		PersistentId: uuid.NewString(),
		ConnectionId: connId,
		Name:         name,
		JoinedAt:     time.Now(),
	}
	room.Players = append(room.Players, player)

	joined := internal.RoomJoinedData{
		RoomId:       room.Id,
		PersistentId: player.PersistentId,
		Phase:        room.Phase,
		Mode:         room.Mode,
		DisplayName:  room.DisplayName,
		Palette:      room.Palette,
		MaxPlayers:   room.MaxPlayers,
		Players:      room.Snapshots(),
	}
	roster := internal.RosterUpdateData{
		RoomId:  room.Id,
		Players: room.Snapshots(),
		Message: fmt.Sprintf("%s joined the lobby", name),
	}
	room.Mu.Unlock()

	log.Printf("[HandleJoin] room=%s: player %s (%s) joined via conn %s",
		roomId, player.PersistentId, name, connId)

	g.bindConn(connId, roomId)
	g.dispatch.JoinRoomChannel(connId, roomId)
	g.dispatch.SendToConnection(connId, "room_joined", joined)
	g.dispatch.SendToRoom(roomId, "roster_update", roster)

	// A join can complete the full_room start condition.
	g.evaluateLobbyStart(room)
	return nil
}

// rebindLocked performs the reconnect path. Called with room.Mu held; unlocks
// before dispatching.
func (g *Registry) rebindLocked(room *internal.Room, player *internal.Player, connId string) {
	player.ConnectionId = connId
	player.Disconnected = false
	clearRemoval(player)

	joined := internal.RoomJoinedData{
		RoomId:       room.Id,
		PersistentId: player.PersistentId,
		Phase:        room.Phase,
		Mode:         room.Mode,
		DisplayName:  room.DisplayName,
		Palette:      room.Palette,
		MaxPlayers:   room.MaxPlayers,
		Players:      room.Snapshots(),
		Reconnected:  true,
	}

	// Replay in-progress session state to this connection only.
	var board *internal.BoardData
	if room.HasStarted() && len(player.Board) > 0 {
		board = &internal.BoardData{
			RoomId:    room.Id,
			Board:     slices.Clone(player.Board),
			BoardSize: len(room.SymbolPool),
			Matched:   slices.Clone(room.Matched),
		}
	}
	var turn *internal.TurnStartedData
	if room.Turn != nil && !room.Turn.Resolved {
		turn = &internal.TurnStartedData{RoomId: room.Id, TurnNumber: room.Turn.Number}
	}
	var round *internal.RoundUpdateData
	if room.Round != nil && room.Round.Active {
		r := roundUpdateFor(room, player)
		round = &r
	}
	presence := internal.PresenceData{
		RoomId:       room.Id,
		PersistentId: player.PersistentId,
		Name:         player.Name,
	}

	// An active room may have stalled with no turn or round in flight while
	// too few players were connected. This reconnect may unstick it.
	needRestart := false
	if room.Phase == internal.PhaseActive {
		switch room.Mode {
		case internal.ModeSignal:
			needRestart = room.Round == nil || !room.Round.Active
		default:
			needRestart = room.Turn == nil || room.Turn.Resolved
		}
	}
	mode := room.Mode
	roomId := room.Id
	room.Mu.Unlock()

	log.Printf("[HandleJoin] room=%s: player %s (%s) reconnected via conn %s",
		roomId, player.PersistentId, player.Name, connId)

	g.bindConn(connId, roomId)
	g.dispatch.JoinRoomChannel(connId, roomId)
	g.dispatch.SendToConnection(connId, "room_joined", joined)
	if board != nil {
		g.dispatch.SendToConnection(connId, "board_assigned", *board)
	}
	if turn != nil {
		g.dispatch.SendToConnection(connId, "turn_started", *turn)
	}
	if round != nil {
		g.dispatch.SendToConnection(connId, "round_update", *round)
	}
	g.dispatch.SendToRoom(roomId, "player_reconnected", presence)

	if needRestart {
		g.restartRound(room, mode)
	}
}

// HandleDisconnect reacts to transport loss: the player keeps their slot for
// the reconnect grace window, a removal timer is armed, and any state the
// disconnect invalidates (countdown, in-flight round) is unwound.
func (g *Registry) HandleDisconnect(connId string) {
	room := g.roomByConn(connId)
	g.unbindConn(connId)
	if room == nil {
		return
	}
	g.dispatch.LeaveRoomChannel(connId, room.Id)

	room.Mu.Lock()
	player := room.PlayerByConnection(connId)
	if player == nil {
		room.Mu.Unlock()
		return
	}
	player.Disconnected = true
	player.ConnectionId = ""

	roomId := room.Id
	pid := player.PersistentId
	armRemoval(player, g.cfg.ReconnectGrace, func(ctx context.Context) {
		g.removalExpired(roomId, pid, ctx)
	})

	countdownCancelled := room.Phase == internal.PhaseCountdown
	if countdownCancelled {
		clearCountdown(room)
		room.Phase = internal.PhaseLobby
	}

	abandoned := g.abandonRoundLocked(room, pid)

	presence := internal.PresenceData{
		RoomId:       roomId,
		PersistentId: pid,
		Name:         player.Name,
		Remaining:    room.ConnectedCount(),
	}
	mode := room.Mode
	room.Mu.Unlock()

	log.Printf("[HandleDisconnect] room=%s: player %s disconnected (grace %v, countdownCancelled=%v abandoned=%v)",
		roomId, pid, g.cfg.ReconnectGrace, countdownCancelled, abandoned)

	g.dispatch.SendToRoom(roomId, "player_disconnected", presence)
	if countdownCancelled {
		g.dispatch.SendToRoom(roomId, "countdown_cancelled", internal.CountdownData{
			RoomId: roomId,
			Reason: "player_disconnected",
		})
	}
	if abandoned {
		g.restartRound(room, mode)
	}
}

// HandleLeave is the explicit leave: immediate permanent removal, no grace.
func (g *Registry) HandleLeave(connId string) {
	room := g.roomByConn(connId)
	g.unbindConn(connId)
	if room == nil {
		return
	}

	room.Mu.RLock()
	var pid string
	if player := room.PlayerByConnection(connId); player != nil {
		pid = player.PersistentId
	}
	room.Mu.RUnlock()
	if pid == "" {
		return
	}
	g.removePlayer(room, pid, nil)
}

// removalExpired fires when a reconnect grace timer runs out. The room or the
// player may be long gone by now, or the grace may have been re-armed; every
// stale fire is a silent no-op.
func (g *Registry) removalExpired(roomId, persistentId string, ctx context.Context) {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return
	}
	g.removePlayer(room, persistentId, ctx)
}

// removePlayer permanently deletes a player and evaluates the departure
// consequences. A non-nil removalCtx marks the grace-timer path: the player is
// removed only while still disconnected with that exact timer attached, so a
// player who reconnected, or who dropped again under a fresh grace timer, is
// left alone.
func (g *Registry) removePlayer(room *internal.Room, persistentId string, removalCtx context.Context) {
	room.Mu.Lock()
	idx := room.IndexOf(persistentId)
	if idx < 0 {
		room.Mu.Unlock()
		return
	}
	player := room.Players[idx]
	if removalCtx != nil {
		if !player.Disconnected || player.Removal == nil || player.Removal.Context != removalCtx {
			room.Mu.Unlock()
			return
		}
		log.Printf("[removePlayer] room=%s: grace period over for player %s", room.Id, persistentId)
	}
	clearRemoval(player)
	connId := player.ConnectionId
	room.Players = slices.Delete(room.Players, idx, idx+1)

	// Keep the rotation cursor in bounds after the shift.
	if room.NextTargetIndex >= len(room.Players) {
		room.NextTargetIndex = 0
	}

	remaining := len(room.Players)
	started := room.HasStarted()
	countdownCancelled := room.Phase == internal.PhaseCountdown
	if countdownCancelled {
		clearCountdown(room)
		room.Phase = internal.PhaseLobby
	}

	abandoned := g.abandonRoundLocked(room, persistentId)
	loadingDone := room.Phase == internal.PhaseLoading && remaining > 0 &&
		room.ConnectedCount() > 0 && room.AllAssetsLoaded()

	left := internal.PresenceData{
		RoomId:       room.Id,
		PersistentId: persistentId,
		Name:         player.Name,
		Remaining:    remaining,
	}
	phase := room.Phase
	mode := room.Mode
	roomId := room.Id
	room.Mu.Unlock()

	if connId != "" {
		g.unbindConn(connId)
		g.dispatch.LeaveRoomChannel(connId, roomId)
	}

	log.Printf("[removePlayer] room=%s: player %s (%s) removed, remaining=%d",
		roomId, persistentId, player.Name, remaining)

	g.dispatch.SendToRoom(roomId, "player_left", left)
	if countdownCancelled {
		g.dispatch.SendToRoom(roomId, "countdown_cancelled", internal.CountdownData{
			RoomId: roomId,
			Reason: "player_left",
		})
	}

	switch {
	case remaining == 0:
		g.DeleteRoom(roomId)
	case started && remaining < internal.MinPlayersToStart:
		g.endGame(room, internal.ReasonInsufficientPlayers, "Not enough players to continue.")
	case abandoned:
		g.restartRound(room, mode)
	case loadingDone:
		// The departure itself completed the all-loaded precondition.
		g.enterActive(room)
	case phase == internal.PhaseLobby && !countdownCancelled:
		g.evaluateLobbyStart(room)
	}
}

// abandonRoundLocked closes the in-flight turn/round if the departing player
// was part of it. Caller holds room.Mu. Returns whether a restart is due.
func (g *Registry) abandonRoundLocked(room *internal.Room, persistentId string) bool {
	if room.Phase != internal.PhaseActive {
		return false
	}
	switch room.Mode {
	case internal.ModeSignal:
		r := room.Round
		if r != nil && r.Active && (r.SourceId == persistentId || r.TargetId == persistentId) {
			r.Active = false
			return true
		}
	default: // ModeMatch: every connected player is part of the turn
		if room.Turn != nil && !room.Turn.Resolved {
			room.Turn.Resolved = true
			return true
		}
	}
	return false
}

// restartRound begins a fresh turn/round after an abandonment, with nobody
// penalized or credited.
func (g *Registry) restartRound(room *internal.Room, mode internal.GameMode) {
	if mode == internal.ModeSignal {
		g.startSignalRound(room)
		return
	}
	g.startNextTurn(room)
}

func shortId(id string) string {
	if len(id) > 4 {
		return id[:4]
	}
	return id
}
