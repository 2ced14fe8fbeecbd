package internal

type Message[T any] struct {
	Type string `json:"type"`
	Data T      `json:"data"`
}

type RoomJoinedData struct {
	RoomId       string           `json:"room_id"`
	PersistentId string           `json:"persistent_id"`
	Phase        GamePhase        `json:"phase"`
	Mode         GameMode         `json:"mode"`
	DisplayName  string           `json:"display_name"`
	Palette      []string         `json:"palette,omitempty"`
	MaxPlayers   int              `json:"max_players"`
	Players      []PlayerSnapshot `json:"players"`
	Reconnected  bool             `json:"reconnected"`
}

type RosterUpdateData struct {
	RoomId  string           `json:"room_id"`
	Players []PlayerSnapshot `json:"players"`
	Message string           `json:"message,omitempty"`
}

type CountdownData struct {
	RoomId     string `json:"room_id"`
	DeadlineMs int64  `json:"deadline_ms,omitempty"`
	Seconds    int    `json:"seconds,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// BoardData is private to one player: their own layout plus the shared facts.
type BoardData struct {
	RoomId    string   `json:"room_id"`
	Board     []string `json:"board"`
	BoardSize int      `json:"board_size"`
	Matched   []string `json:"matched"`
}

type TurnStartedData struct {
	RoomId     string `json:"room_id"`
	TurnNumber int    `json:"turn_number"`
}

type TurnResolvedData struct {
	RoomId     string            `json:"room_id"`
	TurnNumber int               `json:"turn_number"`
	Success    bool              `json:"success"`
	Symbol     string            `json:"symbol,omitempty"` // set on success
	Picks      map[string]string `json:"picks"`            // persistentId -> pick
	Matched    []string          `json:"matched"`
}

// RoundUpdateData is role-private: the target additionally learns which index
// on their own hand is expected.
type RoundUpdateData struct {
	RoomId      string `json:"room_id"`
	RoundNumber int    `json:"round_number"`
	Role        string `json:"role"` // source, target, inactive
	Symbol      string `json:"symbol"`
	YourIndex   int    `json:"your_index"`
	Bonus       bool   `json:"bonus"`
	PiecesTotal int    `json:"pieces_total"`
}

type FeedbackData struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
	Pieces  int    `json:"pieces,omitempty"`
}

type PresenceData struct {
	RoomId       string `json:"room_id"`
	PersistentId string `json:"persistent_id"`
	Name         string `json:"name"`
	Remaining    int    `json:"remaining,omitempty"`
}

type GameEndedData struct {
	RoomId  string    `json:"room_id"`
	Reason  EndReason `json:"reason"`
	Message string    `json:"message"`
	Matched []string  `json:"matched,omitempty"`
	Pieces  int       `json:"pieces,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Response struct {
	StatusCode    int   `json:"status_code"`
	RespStartTime int64 `json:"resp_time_start_ms"`
	RespEndTime   int64 `json:"resp_time_end_ms"`
	NetRespTime   int64 `json:"net_resp_time_ms"`
	Data          any   `json:"data"`
}
