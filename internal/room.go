package internal

// Methods (Room struct). None of these lock; callers hold room.Mu.

func (r *Room) ConnectedCount() int {
	count := 0
	for _, player := range r.Players {
		if !player.Disconnected {
			count++
		}
	}
	return count
}

func (r *Room) ConnectedPlayers() []*Player {
	connected := make([]*Player, 0, len(r.Players))
	for _, player := range r.Players {
		if !player.Disconnected {
			connected = append(connected, player)
		}
	}
	return connected
}

func (r *Room) PlayerByConnection(connId string) *Player {
	if connId == "" {
		return nil
	}
	for _, player := range r.Players {
		if player.ConnectionId == connId {
			return player
		}
	}
	return nil
}

func (r *Room) PlayerByPersistentId(persistentId string) *Player {
	for _, player := range r.Players {
		if player.PersistentId == persistentId {
			return player
		}
	}
	return nil
}

func (r *Room) IndexOf(persistentId string) int {
	for i, player := range r.Players {
		if player.PersistentId == persistentId {
			return i
		}
	}
	return -1
}

func (r *Room) AreAllPresentReady() bool {
	for _, player := range r.Players {
		if !player.Disconnected && !player.Ready {
			return false
		}
	}
	return true
}

func (r *Room) AllAssetsLoaded() bool {
	for _, player := range r.Players {
		if !player.Disconnected && !player.AssetsLoaded {
			return false
		}
	}
	return true
}

// StartConditionMet evaluates the template's start policy against the lobby.
func (r *Room) StartConditionMet() bool {
	switch r.StartPolicy {
	case StartFullRoom:
		return len(r.Players) >= r.MaxPlayers
	default: // StartAllReady
		return r.ConnectedCount() >= MinPlayersToStart && r.AreAllPresentReady()
	}
}

// HasStarted reports whether the room is past the lobby/countdown stages.
func (r *Room) HasStarted() bool {
	return r.Phase == PhaseLoading || r.Phase == PhaseActive
}

func (r *Room) Snapshots() []PlayerSnapshot {
	snapshots := make([]PlayerSnapshot, 0, len(r.Players))
	for _, player := range r.Players {
		snapshots = append(snapshots, player.Snapshot())
	}
	return snapshots
}

// IsSymbolMatched reports whether a symbol was already resolved this session.
func (r *Room) IsSymbolMatched(symbol string) bool {
	for _, m := range r.Matched {
		if m == symbol {
			return true
		}
	}
	return false
}

// DistinctSymbolCount counts the unique symbols in the session pool. The pool
// carries repeats when a theme ships fewer symbols than a board needs, and a
// symbol can only ever be matched once.
func (r *Room) DistinctSymbolCount() int {
	seen := make(map[string]struct{}, len(r.SymbolPool))
	for _, symbol := range r.SymbolPool {
		seen[symbol] = struct{}{}
	}
	return len(seen)
}
