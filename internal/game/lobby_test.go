package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapsync/backend/internal"
	"tapsync/backend/internal/catalog"
)

func TestAllReadyArmsCountdown(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)

	// One ready player is not enough.
	g.HandleSetReady(connIds[0], true)
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))
	assert.Equal(t, 0, dispatch.countOfType("countdown_started"))

	g.HandleSetReady(connIds[1], true)
	assert.Equal(t, internal.PhaseCountdown, roomPhase(g, roomId))

	ev, ok := dispatch.lastOfType("countdown_started")
	require.True(t, ok)
	data := ev.Data.(internal.CountdownData)
	assert.Equal(t, roomId, data.RoomId)
	assert.NotZero(t, data.DeadlineMs)
}

func TestSinglePlayerNeverStarts(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 1)
	require.NoError(t, err)

	g.HandleSetReady(connIds[0], true)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))
	assert.Equal(t, 0, dispatch.countOfType("countdown_started"))
}

func TestUnreadyCancelsCountdown(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)
	readyAll(g, connIds)
	require.Equal(t, internal.PhaseCountdown, roomPhase(g, roomId))

	g.HandleSetReady(connIds[0], false)
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))

	ev, ok := dispatch.lastOfType("countdown_cancelled")
	require.True(t, ok)
	assert.Equal(t, "player_unready", ev.Data.(internal.CountdownData).Reason)

	// The original timer must not fire a stale transition.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))
	assert.Equal(t, 0, dispatch.countOfType("asset_phase"))
}

func TestDisconnectCancelsCountdown(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)
	readyAll(g, connIds)
	require.Equal(t, internal.PhaseCountdown, roomPhase(g, roomId))

	g.HandleDisconnect(connIds[1])
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))

	ev, ok := dispatch.lastOfType("countdown_cancelled")
	require.True(t, ok)
	assert.Equal(t, "player_disconnected", ev.Data.(internal.CountdownData).Reason)
}

func TestLeaveDuringCountdownCancelsWithoutRearm(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 3)
	require.NoError(t, err)
	readyAll(g, connIds)
	require.Equal(t, internal.PhaseCountdown, roomPhase(g, roomId))

	g.HandleLeave(connIds[2])
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))
	assert.Equal(t, 2, playerCount(g, roomId))

	ev, ok := dispatch.lastOfType("countdown_cancelled")
	require.True(t, ok)
	assert.Equal(t, "player_left", ev.Data.(internal.CountdownData).Reason)

	// The remaining two are still ready, but a countdown-cancelling departure
	// does not re-arm on its own.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))
}

// A countdown expiry that raced a cancel-and-rearm must neither advance the
// phase nor consume the freshly armed countdown.
func TestStaleCountdownFireIgnoredAfterRearm(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)
	readyAll(g, connIds)
	require.Equal(t, internal.PhaseCountdown, roomPhase(g, roomId))

	room, err := g.FindRoom(roomId)
	require.NoError(t, err)

	// Hold the room lock past the first countdown's deadline, then swap in a
	// fresh countdown before the blocked expiry callback can act.
	room.Mu.Lock()
	time.Sleep(100 * time.Millisecond)
	clearCountdown(room)
	armCountdown(room, 10*time.Second, func(ctx context.Context) {
		g.countdownExpired(roomId, ctx)
	})
	deadline := room.CountdownDeadline
	room.Mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, internal.PhaseCountdown, roomPhase(g, roomId))
	assert.Equal(t, 0, dispatch.countOfType("asset_phase"))

	room.Mu.RLock()
	require.NotNil(t, room.Countdown)
	assert.True(t, room.Countdown.IsActive)
	assert.Equal(t, deadline, room.CountdownDeadline)
	room.Mu.RUnlock()
}

func TestCountdownExpiryAssignsBoards(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 3)
	require.NoError(t, err)
	readyAll(g, connIds)

	require.Eventually(t, func() bool {
		return roomPhase(g, roomId) == internal.PhaseLoading
	}, 2*time.Second, 5*time.Millisecond)

	boards := dispatch.eventsOfType("board_assigned")
	require.Len(t, boards, 3)
	for _, ev := range boards {
		data := ev.Data.(internal.BoardData)
		assert.Len(t, data.Board, internal.MatchBoardSize)
		assert.ElementsMatch(t, studioSymbols, data.Board)
		assert.Empty(t, data.Matched)
	}
}

func TestFullRoomPolicyStartsWithoutReady(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("PACKED")
	require.NoError(t, err)

	require.NoError(t, g.HandleJoin("conn-1", roomId, "", "one"))
	assert.Equal(t, internal.PhaseLobby, roomPhase(g, roomId))

	// The second join fills the room; no ready toggles needed.
	require.NoError(t, g.HandleJoin("conn-2", roomId, "", "two"))
	assert.Equal(t, internal.PhaseCountdown, roomPhase(g, roomId))
	assert.Equal(t, 1, dispatch.countOfType("countdown_started"))

	require.Eventually(t, func() bool {
		return roomPhase(g, roomId) == internal.PhaseLoading
	}, 2*time.Second, 5*time.Millisecond)
}

func TestAssetsLoadedActivates(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)
	readyAll(g, connIds)

	require.Eventually(t, func() bool {
		return roomPhase(g, roomId) == internal.PhaseLoading
	}, 2*time.Second, 5*time.Millisecond)

	// One report is not enough.
	g.HandleAssetsLoaded(connIds[0])
	assert.Equal(t, internal.PhaseLoading, roomPhase(g, roomId))
	assert.Equal(t, 0, dispatch.countOfType("game_started"))

	g.HandleAssetsLoaded(connIds[1])
	assert.Equal(t, internal.PhaseActive, roomPhase(g, roomId))
	assert.Equal(t, 1, dispatch.countOfType("game_started"))
	assert.Equal(t, 1, dispatch.countOfType("turn_started"))
}

func TestForceActivateSkipsLobby(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)

	// Nobody is ready, but the operator pushes the room forward.
	g.HandleForceActivate(connIds[0])
	assert.Equal(t, internal.PhaseLoading, roomPhase(g, roomId))
	assert.Equal(t, 2, dispatch.countOfType("board_assigned"))
}

func TestForceActivateRejectedWhenActive(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)
	require.True(t, driveToActive(g, roomId, connIds))

	g.HandleForceActivate(connIds[0])
	ev, ok := dispatch.lastOfType("room_error")
	require.True(t, ok)
	assert.Equal(t, "phase_mismatch", ev.Data.(internal.ErrorData).Code)
	assert.Equal(t, internal.PhaseActive, roomPhase(g, roomId))
}

func TestEmptySymbolPoolParksRoomInLoading(t *testing.T) {
	orig := catalog.DefaultSymbolPool
	catalog.DefaultSymbolPool = nil
	t.Cleanup(func() { catalog.DefaultSymbolPool = orig })

	g, dispatch := newTestRegistry()

	// The DEFAULT template has no symbols of its own, so it depends on the
	// (now emptied) default pool.
	roomId, err := g.CreateRoom("DEFAULT")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)

	g.HandleForceActivate(connIds[0])
	assert.Equal(t, internal.PhaseLoading, roomPhase(g, roomId))
	assert.Equal(t, 0, dispatch.countOfType("board_assigned"))

	ev, ok := dispatch.lastOfType("room_error")
	require.True(t, ok)
	assert.Equal(t, "symbol_pool_empty", ev.Data.(internal.ErrorData).Code)

	// Once symbols are back, a force_activate retry assigns boards.
	catalog.DefaultSymbolPool = orig
	g.HandleForceActivate(connIds[0])
	assert.Equal(t, 2, dispatch.countOfType("board_assigned"))
	assert.Equal(t, internal.PhaseLoading, roomPhase(g, roomId))

	for _, connId := range connIds {
		g.HandleAssetsLoaded(connId)
	}
	assert.Equal(t, internal.PhaseActive, roomPhase(g, roomId))
}

func TestForceResetEndsRoom(t *testing.T) {
	g, dispatch := newTestRegistry()

	roomId, err := g.CreateRoom("STUDIO")
	require.NoError(t, err)
	connIds, err := joinPlayers(g, roomId, 2)
	require.NoError(t, err)
	require.True(t, driveToActive(g, roomId, connIds))

	g.HandleForceReset(connIds[0])

	ev, ok := dispatch.lastOfType("game_ended")
	require.True(t, ok)
	assert.Equal(t, internal.ReasonAdminReset, ev.Data.(internal.GameEndedData).Reason)

	_, err = g.FindRoom(roomId)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
