package game

import (
	"context"
	"log"
	"math/rand"
	"slices"

	"tapsync/backend/internal"
)

// =============================================================================
// TURN / ROUND RESOLVER
// =============================================================================

// HandleSelection routes a player's button press to the room's resolver
// variant. Presses against a resolved turn or the wrong phase are rejected
// deterministically, never queued.
func (g *Registry) HandleSelection(connId string, symbol string) {
	room := g.roomByConn(connId)
	if room == nil {
		g.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    "room_not_found",
			Message: "You are not in a room.",
		})
		return
	}

	room.Mu.RLock()
	mode := room.Mode
	room.Mu.RUnlock()

	if mode == internal.ModeSignal {
		g.handleSignalPress(room, connId, symbol)
		return
	}
	g.handleMatchPick(room, connId, symbol)
}

// -----------------------------------------------------------------------------
// Matching variant (canonical)
// -----------------------------------------------------------------------------

// startNextTurn opens a fresh matching turn with an empty selection set.
func (g *Registry) startNextTurn(room *internal.Room) {
	room.Mu.Lock()
	if room.Phase != internal.PhaseActive || room.Mode != internal.ModeMatch {
		room.Mu.Unlock()
		return
	}
	if room.ConnectedCount() < internal.MinPlayersToStart {
		// Too few connected, but departures end the game through removal,
		// not here. The turn restarts when someone reconnects.
		roomId := room.Id
		room.Mu.Unlock()
		log.Printf("[startNextTurn] room=%s: waiting for reconnects before the next turn", roomId)
		return
	}
	room.TurnNumber++
	room.Turn = &internal.MatchTurn{
		Number: room.TurnNumber,
		Picks:  make(map[string]string),
	}
	data := internal.TurnStartedData{RoomId: room.Id, TurnNumber: room.TurnNumber}
	roomId := room.Id
	room.Mu.Unlock()

	log.Printf("[startNextTurn] room=%s: turn %d started", roomId, data.TurnNumber)
	g.dispatch.SendToRoom(roomId, "turn_started", data)
}

// handleMatchPick records one pick; the last connected player's pick resolves
// the turn: unanimous symbol = success, anything else = failure.
func (g *Registry) handleMatchPick(room *internal.Room, connId, symbol string) {
	room.Mu.Lock()
	if room.Phase != internal.PhaseActive || room.Turn == nil || room.Turn.Resolved {
		room.Mu.Unlock()
		g.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    "turn_closed",
			Message: "No turn is accepting selections right now.",
		})
		return
	}
	player := room.PlayerByConnection(connId)
	if player == nil || player.Disconnected {
		room.Mu.Unlock()
		return
	}
	if _, dup := room.Turn.Picks[connId]; dup {
		room.Mu.Unlock()
		g.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    "already_picked",
			Message: "You already picked this turn.",
		})
		return
	}
	if room.IsSymbolMatched(symbol) {
		room.Mu.Unlock()
		g.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    "symbol_resolved",
			Message: "That symbol was already matched.",
		})
		return
	}
	if !slices.Contains(player.Board, symbol) {
		room.Mu.Unlock()
		g.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    "invalid_symbol",
			Message: "That symbol is not on your board.",
		})
		return
	}

	room.Turn.Picks[connId] = symbol
	pickCount := len(room.Turn.Picks)
	connected := room.ConnectedCount()
	roomId := room.Id

	if pickCount < connected {
		room.Mu.Unlock()
		log.Printf("[handleMatchPick] room=%s: pick %d/%d recorded", roomId, pickCount, connected)
		g.dispatch.SendToRoom(roomId, "turn_progress", map[string]any{
			"room_id": roomId,
			"picked":  pickCount,
			"total":   connected,
		})
		return
	}

	// Everyone picked: resolve.
	room.Turn.Resolved = true
	turnNo := room.Turn.Number

	success := true
	first := ""
	picksByPlayer := make(map[string]string, pickCount)
	for pickConn, pick := range room.Turn.Picks {
		if p := room.PlayerByConnection(pickConn); p != nil {
			picksByPlayer[p.PersistentId] = pick
		}
		if first == "" {
			first = pick
		} else if pick != first {
			success = false
		}
	}

	if success {
		room.Matched = append(room.Matched, first)
	}
	// Victory counts distinct symbols: a short theme pool is padded with
	// repeats, but each symbol can only be matched once.
	win := success && len(room.Matched) >= room.DistinctSymbolCount()

	data := internal.TurnResolvedData{
		RoomId:     roomId,
		TurnNumber: turnNo,
		Success:    success,
		Picks:      picksByPlayer,
		Matched:    slices.Clone(room.Matched),
	}
	if success {
		data.Symbol = first
	}
	boardSize := len(room.SymbolPool)
	room.Mu.Unlock()

	log.Printf("[handleMatchPick] room=%s: turn %d resolved (success=%v matched=%d/%d)",
		roomId, turnNo, success, len(data.Matched), boardSize)

	g.dispatch.SendToRoom(roomId, "turn_resolved", data)

	if win {
		g.endGame(room, internal.ReasonVictory, "All symbols matched!")
		return
	}
	g.scheduleNextMatchTurn(roomId, turnNo)
}

// scheduleNextMatchTurn opens the next turn after the inter-turn pause,
// unless the room moved on (or away) in the meantime.
func (g *Registry) scheduleNextMatchTurn(roomId string, afterTurn int) {
	startTimer(g.cfg.TurnPause, func(_ context.Context) {
		room, err := g.FindRoom(roomId)
		if err != nil {
			return
		}
		room.Mu.RLock()
		stale := room.Phase != internal.PhaseActive || room.TurnNumber != afterTurn
		room.Mu.RUnlock()
		if stale {
			return
		}
		g.startNextTurn(room)
	})
}

// -----------------------------------------------------------------------------
// Alternating source/target variant
// -----------------------------------------------------------------------------

// roundUpdateFor builds the role-private round payload for one player.
// Caller holds room.Mu.
func roundUpdateFor(room *internal.Room, player *internal.Player) internal.RoundUpdateData {
	data := internal.RoundUpdateData{
		RoomId:      room.Id,
		RoundNumber: room.Round.Number,
		Role:        "inactive",
		Symbol:      room.Round.ExpectedSymbol,
		Bonus:       room.Round.Bonus,
		PiecesTotal: len(room.Pieces),
	}
	switch player.PersistentId {
	case room.Round.SourceId:
		data.Role = "source"
	case room.Round.TargetId:
		data.Role = "target"
		data.YourIndex = room.Round.ExpectedIndex
	}
	return data
}

// startSignalRound nominates a random source and the next target in rotation,
// then tells every player their role privately.
func (g *Registry) startSignalRound(room *internal.Room) {
	room.Mu.Lock()
	if room.Phase != internal.PhaseActive || room.Mode != internal.ModeSignal {
		room.Mu.Unlock()
		return
	}
	connected := room.ConnectedPlayers()
	if len(connected) < internal.MinPlayersToStart {
		roomId := room.Id
		room.Mu.Unlock()
		log.Printf("[startSignalRound] room=%s: waiting for reconnects before the next round", roomId)
		return
	}

	source := connected[rand.Intn(len(connected))]

	// Rotate the target cursor over the full player list, skipping the
	// source and anyone disconnected.
	n := len(room.Players)
	if room.NextTargetIndex >= n {
		room.NextTargetIndex = 0
	}
	var target *internal.Player
	for i := 0; i < n; i++ {
		idx := (room.NextTargetIndex + i) % n
		candidate := room.Players[idx]
		if candidate.PersistentId != source.PersistentId && !candidate.Disconnected {
			target = candidate
			room.NextTargetIndex = (idx + 1) % n
			break
		}
	}
	if target == nil {
		// Cursor produced nothing usable after a full pass: fall back to a
		// uniform choice among the other connected players.
		others := make([]*internal.Player, 0, len(connected))
		for _, p := range connected {
			if p.PersistentId != source.PersistentId {
				others = append(others, p)
			}
		}
		if len(others) > 0 {
			target = others[rand.Intn(len(others))]
			if idx := room.IndexOf(target.PersistentId); idx >= 0 {
				room.NextTargetIndex = (idx + 1) % n
			}
		}
	}
	if target == nil || len(target.Board) == 0 {
		roomId := room.Id
		room.Mu.Unlock()
		log.Printf("[startSignalRound] room=%s: CRITICAL: no eligible target (source=%s), ending room",
			roomId, source.PersistentId)
		g.endGame(room, internal.ReasonInternalError, "No eligible target could be selected.")
		return
	}

	room.RoundNumber++
	expectedIdx := rand.Intn(len(target.Board))
	room.Round = &internal.SignalRound{
		Number:         room.RoundNumber,
		SourceId:       source.PersistentId,
		TargetId:       target.PersistentId,
		ExpectedSymbol: target.Board[expectedIdx],
		ExpectedIndex:  expectedIdx,
		Bonus:          room.RoundNumber%internal.BonusRoundInterval == 0,
		Active:         true,
	}

	type roleMsg struct {
		connId string
		data   internal.RoundUpdateData
	}
	msgs := make([]roleMsg, 0, len(connected))
	for _, p := range connected {
		msgs = append(msgs, roleMsg{connId: p.ConnectionId, data: roundUpdateFor(room, p)})
	}
	roomId := room.Id
	roundNo := room.Round.Number
	bonus := room.Round.Bonus
	room.Mu.Unlock()

	log.Printf("[startSignalRound] room=%s: round %d started (source=%s target=%s bonus=%v)",
		roomId, roundNo, source.PersistentId, target.PersistentId, bonus)

	for _, m := range msgs {
		g.dispatch.SendToConnection(m.connId, "round_update", m.data)
	}
}

// handleSignalPress evaluates a press in the alternating variant. Only the
// target's press resolves the round; anyone else is told off, though on a
// bonus round a wrong-player press still costs a piece.
func (g *Registry) handleSignalPress(room *internal.Room, connId, symbol string) {
	room.Mu.Lock()
	if room.Phase != internal.PhaseActive || room.Round == nil || !room.Round.Active {
		room.Mu.Unlock()
		g.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    "round_closed",
			Message: "No round is accepting presses right now.",
		})
		return
	}
	player := room.PlayerByConnection(connId)
	if player == nil || player.Disconnected {
		room.Mu.Unlock()
		return
	}
	round := room.Round
	roomId := room.Id

	if player.PersistentId != round.TargetId {
		popped := false
		if round.Bonus && len(room.Pieces) > 0 {
			room.Pieces = room.Pieces[:len(room.Pieces)-1]
			popped = true
		}
		pieces := len(room.Pieces)
		room.Mu.Unlock()

		log.Printf("[handleSignalPress] room=%s: player %s pressed out of turn (bonusPenalty=%v)",
			roomId, player.PersistentId, popped)
		g.dispatch.SendToConnection(connId, "feedback", internal.FeedbackData{
			Correct: false,
			Message: "Not your turn!",
			Pieces:  pieces,
		})
		if popped {
			g.dispatch.SendToRoom(roomId, "pieces_update", map[string]any{
				"room_id": roomId,
				"pieces":  pieces,
			})
		}
		return
	}

	// The target acted: this closes the round whatever the outcome.
	round.Active = false
	correct := symbol == round.ExpectedSymbol
	win := false
	if round.Bonus {
		if correct {
			room.Pieces = append(room.Pieces, symbol)
			win = len(room.Pieces) >= internal.PiecesToWin
		} else if len(room.Pieces) > 0 {
			room.Pieces = room.Pieces[:len(room.Pieces)-1]
		}
	}
	pieces := len(room.Pieces)
	roundNo := round.Number
	expected := round.ExpectedSymbol
	room.Mu.Unlock()

	log.Printf("[handleSignalPress] room=%s: round %d resolved by target %s (correct=%v pieces=%d)",
		roomId, roundNo, player.PersistentId, correct, pieces)

	feedback := internal.FeedbackData{Correct: correct, Message: "Correct!", Pieces: pieces}
	if !correct {
		feedback.Message = "Wrong symbol!"
	}
	g.dispatch.SendToConnection(connId, "feedback", feedback)
	g.dispatch.SendToRoom(roomId, "round_resolved", map[string]any{
		"room_id":      roomId,
		"round_number": roundNo,
		"correct":      correct,
		"symbol":       expected,
		"pieces":       pieces,
	})

	if win {
		g.endGame(room, internal.ReasonVictory, "All pieces collected!")
		return
	}
	g.scheduleNextSignalRound(roomId, roundNo)
}

// scheduleNextSignalRound starts the next round after the short pause unless
// the room moved on in the meantime.
func (g *Registry) scheduleNextSignalRound(roomId string, afterRound int) {
	startTimer(g.cfg.RoundPause, func(_ context.Context) {
		room, err := g.FindRoom(roomId)
		if err != nil {
			return
		}
		room.Mu.RLock()
		stale := room.Phase != internal.PhaseActive || room.RoundNumber != afterRound ||
			(room.Round != nil && room.Round.Active)
		room.Mu.RUnlock()
		if stale {
			return
		}
		g.startSignalRound(room)
	})
}
