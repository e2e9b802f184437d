package usecase

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

const fakeCandidates = 3

// fakeNet соединяет fakeTransport между собой по содержимому SDP
type fakeNet struct {
	mu    sync.Mutex
	seq   int
	bySDP map[string]*fakeTransport
	all   []*fakeTransport
}

func newFakeNet() *fakeNet {
	return &fakeNet{bySDP: make(map[string]*fakeTransport)}
}

func (n *fakeNet) factory() TransportFactory {
	return func(h TransportHandlers) (Transport, error) {
		n.mu.Lock()
		defer n.mu.Unlock()

		n.seq++
		t := &fakeTransport{net: n, id: fmt.Sprintf("t%d", n.seq), h: h}
		n.all = append(n.all, t)

		return t, nil
	}
}

func (n *fakeNet) transports() []*fakeTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]*fakeTransport(nil), n.all...)
}

type fakeTransport struct {
	net *fakeNet
	id  string
	h   TransportHandlers

	mu        sync.Mutex
	local     *signaling.SessionDescription
	remote    *signaling.SessionDescription
	peer      *fakeTransport
	applied   []string
	early     int
	tracks    int
	recvOnly  bool
	closed    bool
	connected bool
}

func (t *fakeTransport) AddLocalTracks(tracks []webrtc.TrackLocal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracks += len(tracks)
	return nil
}

func (t *fakeTransport) AddReceiveOnly() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recvOnly = true
	return nil
}

func (t *fakeTransport) CreateOffer() (signaling.SessionDescription, error) {
	return t.setLocal(signaling.SDPTypeOffer)
}

func (t *fakeTransport) CreateAnswer() (signaling.SessionDescription, error) {
	t.mu.Lock()
	hasRemote := t.remote != nil
	t.mu.Unlock()

	if !hasRemote {
		return signaling.SessionDescription{}, errors.New("answer without remote offer")
	}

	return t.setLocal(signaling.SDPTypeAnswer)
}

func (t *fakeTransport) setLocal(typ signaling.SDPType) (signaling.SessionDescription, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return signaling.SessionDescription{}, errors.New("transport closed")
	}
	desc := signaling.SessionDescription{Type: typ, SDP: "sdp-" + t.id}
	t.local = &desc
	t.mu.Unlock()

	t.net.mu.Lock()
	t.net.bySDP[desc.SDP] = t
	t.net.mu.Unlock()

	// локальные кандидаты появляются после установки локального описания
	go func() {
		for i := 0; i < fakeCandidates; i++ {
			t.h.OnLocalCandidate(signaling.Candidate{Candidate: fmt.Sprintf("%s-c%d", t.id, i)})
		}
	}()

	t.maybeConnect()

	return desc, nil
}

func (t *fakeTransport) SetRemoteDescription(desc signaling.SessionDescription) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	if t.remote != nil {
		t.mu.Unlock()
		return errors.New("remote description already set")
	}
	t.remote = &desc
	t.mu.Unlock()

	t.maybeConnect()

	return nil
}

func (t *fakeTransport) HasRemoteDescription() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.remote != nil
}

func (t *fakeTransport) AddICECandidate(c signaling.Candidate) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.remote == nil {
		t.early++
		return errors.New("remote description not set")
	}

	t.applied = append(t.applied, c.Candidate)

	return nil
}

func (t *fakeTransport) SendData(data []byte) error {
	t.mu.Lock()
	peer, connected := t.peer, t.connected
	t.mu.Unlock()

	if !connected {
		return errors.New("data channel not open")
	}

	peer.h.OnData(data)

	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	peer, connected := t.peer, t.connected
	t.connected = false
	t.mu.Unlock()

	if connected {
		go peer.h.OnConnectionState(ConnectionDisconnected)
	}

	return nil
}

// maybeConnect соединяет пару, когда у обеих сторон есть описания друг друга
func (t *fakeTransport) maybeConnect() {
	t.mu.Lock()
	if t.local == nil || t.remote == nil || t.connected {
		t.mu.Unlock()
		return
	}
	remoteSDP, localSDP := t.remote.SDP, t.local.SDP
	t.mu.Unlock()

	t.net.mu.Lock()
	peer := t.net.bySDP[remoteSDP]
	t.net.mu.Unlock()

	if peer == nil {
		return
	}

	peer.mu.Lock()
	ok := peer.local != nil && peer.remote != nil && peer.remote.SDP == localSDP && !peer.closed
	if ok {
		peer.peer = t
		peer.connected = true
	}
	peer.mu.Unlock()

	if !ok {
		return
	}

	t.mu.Lock()
	t.peer = peer
	t.connected = true
	t.mu.Unlock()

	for _, side := range []*fakeTransport{t, peer} {
		go func(side *fakeTransport) {
			side.h.OnConnectionState(ConnectionConnected)
			side.h.OnRemoteTrack(RemoteTrack{ID: "video", StreamID: "stream", Kind: "video", Codec: "video/VP8"})
		}(side)
	}
}

func (t *fakeTransport) snapshot() (applied []string, early int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.applied...), t.early
}

func (t *fakeTransport) isRecvOnly() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.recvOnly
}

func ownedBy(candidate string, t *fakeTransport) bool {
	return strings.HasPrefix(candidate, t.id+"-")
}
