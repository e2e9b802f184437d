package signaling

import "time"

// Candidate повторяет форму RTCIceCandidateInit
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// CandidateRecord - запись в append-only логе кандидатов комнаты.
// Origin - метка сессии, опубликовавшей кандидата; по ней сессия отбрасывает свои же записи.
type CandidateRecord struct {
	Seq       int64     `json:"seq"`
	RoomKey   string    `json:"room_key"`
	Origin    string    `json:"origin"`
	Role      Role      `json:"role"`
	Candidate Candidate `json:"candidate"`
	CreatedAt time.Time `json:"created_at"`
}
