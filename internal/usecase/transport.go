package usecase

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionConnecting
	ConnectionConnected
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (c ConnectionState) String() string {
	switch c {
	case ConnectionConnecting:
		return "connecting"
	case ConnectionConnected:
		return "connected"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return "new"
	}
}

// RemoteTrack описывает входящую медиадорожку собеседника
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     string
	Codec    string
}

// TransportHandlers передаются транспорту при создании, до того как появится
// хоть одно локальное описание сессии, поэтому ни один локальный кандидат не теряется.
type TransportHandlers struct {
	OnLocalCandidate  func(signaling.Candidate)
	OnRemoteTrack     func(RemoteTrack)
	OnConnectionState func(ConnectionState)
	OnData            func([]byte)
}

// Transport - всё, что сессии нужно от WebRTC.
type Transport interface {
	AddLocalTracks(tracks []webrtc.TrackLocal) error

	// AddReceiveOnly используется в деградированном режиме без локального захвата
	AddReceiveOnly() error

	// CreateOffer и CreateAnswer создают описание и сразу ставят его локальным
	CreateOffer() (signaling.SessionDescription, error)
	CreateAnswer() (signaling.SessionDescription, error)

	SetRemoteDescription(desc signaling.SessionDescription) error
	HasRemoteDescription() bool
	AddICECandidate(candidate signaling.Candidate) error

	// SendData отправляет сообщение по data channel поверх того же соединения
	SendData(data []byte) error

	Close() error
}

type TransportFactory func(handlers TransportHandlers) (Transport, error)

// LocalMedia - захваченные локальные дорожки. Stop останавливает захват.
type LocalMedia struct {
	Tracks []webrtc.TrackLocal
	Stop   func()
}

type MediaSource interface {
	Acquire(ctx context.Context) (*LocalMedia, error)
}

// KeySource выдаёт новые pairing key для перехода к следующему собеседнику
type KeySource interface {
	Key() (string, error)
}
