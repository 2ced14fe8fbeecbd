package internal

import (
	"time"
)

// Player is one identity slot in a room. PersistentId survives reconnects;
// ConnectionId is the live transport handle and is empty while disconnected.
type Player struct {
	PersistentId string `json:"persistent_id"`
	ConnectionId string `json:"-"`
	Name         string `json:"name"`

	Disconnected bool `json:"disconnected"`
	Ready        bool `json:"ready"`
	AssetsLoaded bool `json:"assets_loaded"`

	// Board is the per-session private layout: a shuffled permutation of the
	// shared pool in match mode, a hand of SignalHandSize symbols in signal mode.
	Board []string `json:"board,omitempty"`

	JoinedAt time.Time `json:"joined_at"`

	// Removal is the reconnect-grace timer, armed only while Disconnected.
	Removal *GameTimer `json:"-"`
}

// PlayerSnapshot is the broadcast-safe view of a player. Boards stay private.
type PlayerSnapshot struct {
	PersistentId string `json:"persistent_id"`
	Name         string `json:"name"`
	Disconnected bool   `json:"disconnected"`
	Ready        bool   `json:"ready"`
	AssetsLoaded bool   `json:"assets_loaded"`
}

func (p *Player) Snapshot() PlayerSnapshot {
	return PlayerSnapshot{
		PersistentId: p.PersistentId,
		Name:         p.Name,
		Disconnected: p.Disconnected,
		Ready:        p.Ready,
		AssetsLoaded: p.AssetsLoaded,
	}
}
