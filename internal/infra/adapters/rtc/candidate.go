package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/usecase"
)

func fromInit(c webrtc.ICECandidateInit) signaling.Candidate {
	return signaling.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func toInit(c signaling.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func connectionState(s webrtc.PeerConnectionState) usecase.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return usecase.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return usecase.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return usecase.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return usecase.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return usecase.ConnectionClosed
	default:
		return usecase.ConnectionNew
	}
}
