package game

import (
	"log"
	"math/rand"
	"slices"

	"tapsync/backend/internal"
)

// =============================================================================
// GAME FLOW: asset loading, active entry, teardown
// =============================================================================

type privateBoard struct {
	connId string
	data   internal.BoardData
}

// enterAssetLoading moves the room into the loading phase and assigns the
// session's symbols exactly once. An empty symbol pool is a fatal setup
// error: everyone is told, the room stays in loading and can only progress
// via a retry (force_activate).
func (g *Registry) enterAssetLoading(room *internal.Room) {
	room.Mu.Lock()
	if room.Phase == internal.PhaseActive || room.Phase == internal.PhaseEnded {
		room.Mu.Unlock()
		return
	}
	room.Phase = internal.PhaseLoading
	clearCountdown(room)
	for _, player := range room.Players {
		player.AssetsLoaded = false
	}

	if len(room.SymbolPool) == 0 {
		if err := g.assignBoardsLocked(room); err != nil {
			roomId := room.Id
			room.Mu.Unlock()
			log.Printf("[enterAssetLoading] room=%s: symbol pool setup failed: %v", roomId, err)
			g.dispatch.SendToRoom(roomId, "room_error", internal.ErrorData{
				Code:    "symbol_pool_empty",
				Message: "No symbols available for this theme; the room cannot start.",
			})
			return
		}
	}

	boards := make([]privateBoard, 0, len(room.Players))
	for _, player := range room.Players {
		if player.Disconnected || player.ConnectionId == "" {
			continue
		}
		boards = append(boards, privateBoard{
			connId: player.ConnectionId,
			data: internal.BoardData{
				RoomId:    room.Id,
				Board:     slices.Clone(player.Board),
				BoardSize: len(room.SymbolPool),
				Matched:   slices.Clone(room.Matched),
			},
		})
	}
	roster := internal.RosterUpdateData{
		RoomId:  room.Id,
		Players: room.Snapshots(),
		Message: "Loading assets...",
	}
	roomId := room.Id
	room.Mu.Unlock()

	log.Printf("[enterAssetLoading] room=%s: boards assigned, waiting for %d players to report loaded",
		roomId, len(boards))

	g.dispatch.SendToRoom(roomId, "asset_phase", roster)
	for _, b := range boards {
		g.dispatch.SendToConnection(b.connId, "board_assigned", b.data)
	}
}

// assignBoardsLocked draws the session pool and deals each player their
// private layout. Caller holds room.Mu.
func (g *Registry) assignBoardsLocked(room *internal.Room) error {
	need := internal.MatchBoardSize
	if room.Mode == internal.ModeSignal {
		need = len(room.Players) * internal.SignalHandSize
	}

	pool, err := g.catalog.BuildPool(room.Theme, need)
	if err != nil {
		return err
	}
	room.SymbolPool = pool
	room.Matched = make([]string, 0, len(pool))
	room.Pieces = make([]string, 0, internal.PiecesToWin)

	switch room.Mode {
	case internal.ModeSignal:
		// Each player gets a private disjoint hand, dealt in join order.
		for i, player := range room.Players {
			player.Board = slices.Clone(pool[i*internal.SignalHandSize : (i+1)*internal.SignalHandSize])
		}
	default:
		// Match mode: every player holds a private shuffled permutation of
		// the same shared set.
		for _, player := range room.Players {
			board := slices.Clone(pool)
			rand.Shuffle(len(board), func(i, j int) {
				board[i], board[j] = board[j], board[i]
			})
			player.Board = board
		}
	}
	return nil
}

// HandleAssetsLoaded records one player's loaded report; the last report
// flips the room into the active phase.
func (g *Registry) HandleAssetsLoaded(connId string) {
	room := g.roomByConn(connId)
	if room == nil {
		return
	}

	room.Mu.Lock()
	if room.Phase != internal.PhaseLoading {
		room.Mu.Unlock()
		return
	}
	player := room.PlayerByConnection(connId)
	if player == nil {
		room.Mu.Unlock()
		return
	}
	player.AssetsLoaded = true

	done := len(room.SymbolPool) > 0 && room.ConnectedCount() > 0 && room.AllAssetsLoaded()
	roster := internal.RosterUpdateData{
		RoomId:  room.Id,
		Players: room.Snapshots(),
	}
	roomId := room.Id
	room.Mu.Unlock()

	log.Printf("[HandleAssetsLoaded] room=%s: player %s reported loaded (allLoaded=%v)",
		roomId, player.PersistentId, done)

	g.dispatch.SendToRoom(roomId, "roster_update", roster)
	if done {
		g.enterActive(room)
	}
}

// enterActive starts gameplay: counters reset, then the first turn or round.
func (g *Registry) enterActive(room *internal.Room) {
	room.Mu.Lock()
	if room.Phase != internal.PhaseLoading || len(room.SymbolPool) == 0 {
		room.Mu.Unlock()
		return
	}
	room.Phase = internal.PhaseActive
	room.TurnNumber = 0
	room.RoundNumber = 0
	room.NextTargetIndex = 0
	room.Turn = nil
	room.Round = nil
	mode := room.Mode
	roomId := room.Id
	boardSize := len(room.SymbolPool)
	room.Mu.Unlock()

	log.Printf("[enterActive] room=%s: all assets loaded, game on (mode=%s boardSize=%d)",
		roomId, mode, boardSize)

	g.dispatch.SendToRoom(roomId, "game_started", map[string]any{
		"room_id":    roomId,
		"mode":       mode,
		"board_size": boardSize,
	})

	if mode == internal.ModeSignal {
		g.startSignalRound(room)
		return
	}
	g.startNextTurn(room)
}

// endGame is the single teardown path: every end reason funnels through here.
func (g *Registry) endGame(room *internal.Room, reason internal.EndReason, message string) {
	room.Mu.Lock()
	if room.Phase == internal.PhaseEnded {
		room.Mu.Unlock()
		return
	}
	room.Phase = internal.PhaseEnded
	clearCountdown(room)
	for _, player := range room.Players {
		clearRemoval(player)
	}
	data := internal.GameEndedData{
		RoomId:  room.Id,
		Reason:  reason,
		Message: message,
		Matched: slices.Clone(room.Matched),
		Pieces:  len(room.Pieces),
	}
	roomId := room.Id
	room.Mu.Unlock()

	log.Printf("[endGame] room=%s: ended (reason=%s): %s", roomId, reason, message)

	g.dispatch.SendToRoom(roomId, "game_ended", data)
	g.DeleteRoom(roomId)
}

// HandleForceReset is the operator kill switch for a room.
func (g *Registry) HandleForceReset(connId string) {
	room := g.roomByConn(connId)
	if room == nil {
		return
	}
	g.endGame(room, internal.ReasonAdminReset, "Room was reset by an operator.")
}
