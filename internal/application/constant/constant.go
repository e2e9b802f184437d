package constant

// Ключи атрибутов slog
const (
	Error       = "error"
	RoomKey     = "room_key"
	Role        = "role"
	Origin      = "origin"
	Participant = "participant"
	Status      = "status"
	State       = "state"
)
