package signaling

import (
	"errors"
	"time"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomConflict     = errors.New("room already exists")
	ErrAnswerAlreadySet = errors.New("room answer already set")
	ErrInvalidKey       = errors.New("invalid pairing key")
)

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription - SDP одной из сторон
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

func (r Role) Valid() bool {
	return r == RoleInitiator || r == RoleResponder
}

type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseOffered
	PhaseAnswered
)

func (p Phase) String() string {
	switch p {
	case PhaseOffered:
		return "offered"
	case PhaseAnswered:
		return "answered"
	default:
		return "empty"
	}
}

// Room - документ рандеву. Offer и Answer пишутся максимум по одному разу.
type Room struct {
	Key        string              `json:"key"`
	Offer      *SessionDescription `json:"offer,omitempty"`
	Answer     *SessionDescription `json:"answer,omitempty"`
	CreatorRef string              `json:"creator_ref,omitempty"`
	JoinerRef  string              `json:"joiner_ref,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

func (r Room) Phase() Phase {
	switch {
	case r.Answer != nil:
		return PhaseAnswered
	case r.Offer != nil:
		return PhaseOffered
	default:
		return PhaseEmpty
	}
}
