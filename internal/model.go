package internal

import (
	"context"
	"sync"
	"time"
)

const (
	MinPlayersToStart  = 2
	MatchBoardSize     = 9
	SignalHandSize     = 4
	PiecesToWin        = 4
	BonusRoundInterval = 3

	DefaultMaxPlayers     = 8
	DefaultCountdown      = 10 * time.Second
	DefaultReconnectGrace = 20 * time.Second
	DefaultTurnPause      = 3 * time.Second
	DefaultRoundPause     = 1500 * time.Millisecond
)

type GamePhase string

const (
	PhaseLobby     GamePhase = "lobby"
	PhaseCountdown GamePhase = "countdown_pending"
	PhaseLoading   GamePhase = "asset_loading"
	PhaseActive    GamePhase = "active"
	PhaseEnded     GamePhase = "ended"
)

// GameMode selects the resolver variant a room runs with.
// ModeMatch is the canonical simultaneous-matching game; ModeSignal is the
// alternating source/target game.
type GameMode string

const (
	ModeMatch  GameMode = "match"
	ModeSignal GameMode = "signal"
)

// StartPolicy is the lobby start condition. Which one applies comes from the
// room template, never from code.
type StartPolicy string

const (
	StartAllReady StartPolicy = "all_ready"
	StartFullRoom StartPolicy = "full_room"
)

type EndReason string

const (
	ReasonVictory             EndReason = "victory"
	ReasonInsufficientPlayers EndReason = "insufficient_players"
	ReasonAdminReset          EndReason = "admin_reset"
	ReasonHostDisconnected    EndReason = "host_disconnected"
	ReasonInternalError       EndReason = "internal_error"
)

// GameTimer is a single cancellable timer. The goroutine driving it watches
// Context; Cancel stops it before expiry. Each room owns at most one active
// countdown timer, each disconnected player at most one removal timer.
type GameTimer struct {
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	IsActive  bool          `json:"is_active"`
	Context   context.Context
	Cancel    context.CancelFunc
}

// MatchTurn is one simultaneous-matching turn: every connected player submits
// exactly one pick, then the turn resolves.
type MatchTurn struct {
	Number   int               `json:"number"`
	Picks    map[string]string `json:"picks"` // connectionId -> chosen symbol
	Resolved bool              `json:"resolved"`
}

// SignalRound is one alternating-variant round: a random source signals, the
// rotated target must press the expected symbol on their own hand.
type SignalRound struct {
	Number         int    `json:"number"`
	SourceId       string `json:"source_id"` // persistent ids
	TargetId       string `json:"target_id"`
	ExpectedSymbol string `json:"expected_symbol"`
	ExpectedIndex  int    `json:"expected_index"`
	Bonus          bool   `json:"bonus"`
	Active         bool   `json:"active"`
}

type Room struct {
	Id          string
	Theme       string
	DisplayName string
	MaxPlayers  int
	Mode        GameMode
	StartPolicy StartPolicy
	Palette     []string

	// Lifecycle state
	Phase   GamePhase `json:"phase"`
	Players []*Player `json:"players"` // insertion order = join order

	// Session state, assigned once per Active entry
	SymbolPool []string `json:"symbol_pool"`
	Matched    []string `json:"matched"` // match mode: resolved symbols
	Pieces     []string `json:"pieces"`  // signal mode: won pieces

	// Exactly one of Turn/Round is in flight, matching the room mode.
	Turn  *MatchTurn   `json:"turn,omitempty"`
	Round *SignalRound `json:"round,omitempty"`

	TurnNumber      int `json:"turn_number"`
	RoundNumber     int `json:"round_number"`
	NextTargetIndex int `json:"next_target_index"`

	// Countdown, present only while Phase == PhaseCountdown
	CountdownDeadline time.Time  `json:"countdown_deadline,omitempty"`
	Countdown         *GameTimer `json:"-"`

	// Concurrency control: one lock per room, never a global one
	Mu sync.RWMutex `json:"-"`
}
