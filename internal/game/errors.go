package game

import "errors"

// Validation and setup errors. All of these are reported to the originating
// connection only; callers branch with errors.Is.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrTemplateNotFound    = errors.New("theme template not found")
	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyStarted      = errors.New("game already in progress")
	ErrDuplicateConnection = errors.New("connection already bound to a player in this room")
)

// errorCode maps an engine error to the machine-readable code carried on the
// wire next to the human-readable message.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrAlreadyStarted):
		return "already_started"
	case errors.Is(err, ErrDuplicateConnection):
		return "duplicate_connection"
	default:
		return "internal_error"
	}
}
