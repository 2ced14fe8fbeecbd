package game

import (
	"context"
	"log"
	"time"

	"tapsync/backend/internal"
)

// =============================================================================
// TIMER DRIVER
// =============================================================================
//
// Every asynchronous edge in the engine goes through startTimer: the lobby
// countdown, per-player removal timers and the inter-turn pauses. Callbacks
// re-resolve the room through the registry when they fire, so a timer that
// outlives its room is a silent no-op, never a crash. Callbacks also receive
// their own timer's context, letting them verify under the room lock that the
// fire belongs to the timer still attached to the room or player; an expiry
// that raced a cancel-and-rearm must not act on the re-armed state.

// startTimer arms a one-shot cancellable timer. onExpire runs in its own
// goroutine only on natural expiry, never after Cancel, and is handed the
// timer's context as its identity.
func startTimer(duration time.Duration, onExpire func(ctx context.Context)) *internal.GameTimer {
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	timer := &internal.GameTimer{
		StartTime: time.Now(),
		Duration:  duration,
		IsActive:  true,
		Context:   ctx,
		Cancel:    cancel,
	}

	go func() {
		<-ctx.Done()
		if ctx.Err() == context.DeadlineExceeded {
			go onExpire(ctx)
		}
	}()

	return timer
}

// stopTimer cancels a timer if it is still armed. Safe on nil.
func stopTimer(timer *internal.GameTimer) {
	if timer == nil || !timer.IsActive {
		return
	}
	timer.IsActive = false
	if timer.Cancel != nil {
		timer.Cancel()
	}
}

// armCountdown attaches the lobby countdown to a room. At most one countdown
// may be armed per room; arming while one is active is a no-op.
// Caller holds room.Mu.
func armCountdown(room *internal.Room, duration time.Duration, onExpire func(ctx context.Context)) bool {
	if room.Countdown != nil && room.Countdown.IsActive {
		log.Printf("[armCountdown] room=%s: countdown already armed, ignoring", room.Id)
		return false
	}
	room.Countdown = startTimer(duration, onExpire)
	room.CountdownDeadline = room.Countdown.StartTime.Add(duration)
	return true
}

// clearCountdown cancels and detaches the room countdown. Caller holds room.Mu.
func clearCountdown(room *internal.Room) {
	stopTimer(room.Countdown)
	room.Countdown = nil
	room.CountdownDeadline = time.Time{}
}

// armRemoval attaches the reconnect-grace timer to a disconnected player.
// Exactly one removal timer per disconnected player. Caller holds room.Mu.
func armRemoval(player *internal.Player, duration time.Duration, onExpire func(ctx context.Context)) {
	stopTimer(player.Removal)
	player.Removal = startTimer(duration, onExpire)
}

// clearRemoval cancels a pending removal timer. Caller holds room.Mu.
func clearRemoval(player *internal.Player) {
	stopTimer(player.Removal)
	player.Removal = nil
}
