package usecase

// SessionState - жизненный цикл PeerSession
type SessionState string

const (
	StateInitializing           SessionState = "initializing"
	StateAwaitingPartner        SessionState = "awaiting-partner"
	StateDescriptionsExchanging SessionState = "descriptions-exchanging"
	StateConnected              SessionState = "connected"
	StateEnded                  SessionState = "ended"
)

// Status - то, что видит пользователь
type Status string

const (
	StatusConnecting           Status = "connecting"
	StatusAwaitingPartner      Status = "awaiting-partner"
	StatusConnected            Status = "connected"
	StatusPartnerDisconnected  Status = "partner-disconnected"
	StatusSignalingUnavailable Status = "signaling-unavailable"
)

func (s SessionState) status() (Status, bool) {
	switch s {
	case StateInitializing, StateDescriptionsExchanging:
		return StatusConnecting, true
	case StateAwaitingPartner:
		return StatusAwaitingPartner, true
	case StateConnected:
		return StatusConnected, true
	default:
		return "", false
	}
}

func (s Status) Text() string {
	switch s {
	case StatusConnecting:
		return "Connecting..."
	case StatusAwaitingPartner:
		return "Waiting for a partner to connect..."
	case StatusConnected:
		return "Connected"
	case StatusPartnerDisconnected:
		return "Partner disconnected"
	case StatusSignalingUnavailable:
		return "Signaling unavailable"
	default:
		return string(s)
	}
}
