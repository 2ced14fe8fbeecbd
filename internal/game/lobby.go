package game

import (
	"context"
	"log"
	"time"

	"tapsync/backend/internal"
)

// =============================================================================
// LOBBY & COUNTDOWN
// =============================================================================

// HandleSetReady toggles a player's lobby readiness. Going not-ready while
// the countdown is pending cancels it and drops the room back to the lobby.
func (g *Registry) HandleSetReady(connId string, ready bool) {
	room := g.roomByConn(connId)
	if room == nil {
		return
	}

	room.Mu.Lock()
	if room.Phase != internal.PhaseLobby && room.Phase != internal.PhaseCountdown {
		log.Printf("[HandleSetReady] room=%s: ignoring ready toggle in phase %s", room.Id, room.Phase)
		room.Mu.Unlock()
		return
	}
	player := room.PlayerByConnection(connId)
	if player == nil {
		room.Mu.Unlock()
		return
	}
	player.Ready = ready

	countdownCancelled := !ready && room.Phase == internal.PhaseCountdown
	if countdownCancelled {
		clearCountdown(room)
		room.Phase = internal.PhaseLobby
	}

	roster := internal.RosterUpdateData{
		RoomId:  room.Id,
		Players: room.Snapshots(),
	}
	roomId := room.Id
	room.Mu.Unlock()

	log.Printf("[HandleSetReady] room=%s: player %s ready=%v", roomId, player.PersistentId, ready)

	g.dispatch.SendToRoom(roomId, "roster_update", roster)
	if countdownCancelled {
		log.Printf("[HandleSetReady] room=%s: countdown cancelled, player went not-ready", roomId)
		g.dispatch.SendToRoom(roomId, "countdown_cancelled", internal.CountdownData{
			RoomId: roomId,
			Reason: "player_unready",
		})
		return
	}
	if ready {
		g.evaluateLobbyStart(room)
	}
}

// evaluateLobbyStart arms the countdown when the template's start condition
// holds. A no-op in any phase but Lobby.
func (g *Registry) evaluateLobbyStart(room *internal.Room) {
	room.Mu.Lock()
	if room.Phase != internal.PhaseLobby || !room.StartConditionMet() {
		room.Mu.Unlock()
		return
	}
	room.Phase = internal.PhaseCountdown
	roomId := room.Id
	armed := armCountdown(room, g.cfg.Countdown, func(ctx context.Context) {
		g.countdownExpired(roomId, ctx)
	})
	deadline := room.CountdownDeadline
	room.Mu.Unlock()

	if !armed {
		return
	}
	log.Printf("[evaluateLobbyStart] room=%s: start condition met, countdown armed (%v)", roomId, g.cfg.Countdown)
	g.dispatch.SendToRoom(roomId, "countdown_started", internal.CountdownData{
		RoomId:     roomId,
		DeadlineMs: deadline.UnixMilli(),
		Seconds:    int(g.cfg.Countdown / time.Second),
	})
}

// countdownExpired fires on natural countdown expiry. The fire is honored only
// when it belongs to the countdown still attached to the room: an expiry that
// raced a cancel must not consume a freshly re-armed countdown. The start
// condition is then re-validated: players may have un-readied or left while
// the timer ran.
func (g *Registry) countdownExpired(roomId string, ctx context.Context) {
	room, err := g.FindRoom(roomId)
	if err != nil {
		return // room deleted while the timer ran
	}

	room.Mu.Lock()
	if room.Phase != internal.PhaseCountdown || room.Countdown == nil || room.Countdown.Context != ctx {
		room.Mu.Unlock()
		return // stale fire from a cancelled countdown
	}
	clearCountdown(room)

	if !room.StartConditionMet() {
		room.Phase = internal.PhaseLobby
		room.Mu.Unlock()
		log.Printf("[countdownExpired] room=%s: start condition no longer met, back to lobby", roomId)
		g.dispatch.SendToRoom(roomId, "countdown_cancelled", internal.CountdownData{
			RoomId: roomId,
			Reason: "start_condition_not_met",
		})
		return
	}
	room.Mu.Unlock()

	log.Printf("[countdownExpired] room=%s: countdown complete, entering asset loading", roomId)
	g.enterAssetLoading(room)
}

// HandleForceActivate is the operator override: skip the lobby preconditions
// and push the room into asset loading. On a room already stuck in asset
// loading it retries board assignment (the symbol-pool recovery path).
func (g *Registry) HandleForceActivate(connId string) {
	room := g.roomByConn(connId)
	if room == nil {
		return
	}

	room.Mu.Lock()
	phase := room.Phase
	if phase == internal.PhaseCountdown {
		clearCountdown(room)
	}
	roomId := room.Id
	room.Mu.Unlock()

	switch phase {
	case internal.PhaseLobby, internal.PhaseCountdown, internal.PhaseLoading:
		log.Printf("[HandleForceActivate] room=%s: operator forced activation from phase %s", roomId, phase)
		g.enterAssetLoading(room)
	default:
		g.dispatch.SendToConnection(connId, "room_error", internal.ErrorData{
			Code:    "phase_mismatch",
			Message: "Room cannot be force-activated in its current phase.",
		})
	}
}
