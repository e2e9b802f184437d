// Package rtc - WebRTC транспорт сессии поверх pion.
package rtc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/usecase"
)

const (
	dataChannelLabel = "paircall"

	// flushTimeout - сколько Close ждёт, пока SCTP дошлёт буфер канала данных
	flushTimeout = 250 * time.Millisecond
)

var ErrDataChannelClosed = errors.New("data channel is not open")

type Config struct {
	ICEServers []webrtc.ICEServer

	// ICESource, если задан, вызывается на каждый новый транспорт вместо ICEServers:
	// временные TURN креды живут меньше процесса
	ICESource func() []webrtc.ICEServer

	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DisconnectedTimeout <= 0 {
		c.DisconnectedTimeout = 10 * time.Second
	}
	if c.FailedTimeout <= 0 {
		c.FailedTimeout = 30 * time.Second
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 2 * time.Second
	}

	return c
}

func newAPI(cfg Config) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory(slog.Default())}
	se.SetICETimeouts(cfg.DisconnectedTimeout, cfg.FailedTimeout, cfg.KeepAliveInterval)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	), nil
}

// NewFactory собирает pion API один раз и отдаёт фабрику транспортов для сессий
func NewFactory(cfg Config) (usecase.TransportFactory, error) {
	cfg = cfg.withDefaults()

	api, err := newAPI(cfg)
	if err != nil {
		return nil, err
	}

	return func(h usecase.TransportHandlers) (usecase.Transport, error) {
		return newTransport(api, cfg, h)
	}, nil
}

type transport struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	h      usecase.TransportHandlers
	closed atomic.Bool
}

func newTransport(api *webrtc.API, cfg Config, h usecase.TransportHandlers) (*transport, error) {
	servers := cfg.ICEServers
	if cfg.ICESource != nil {
		servers = cfg.ICESource()
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	// канал согласован заранее: обе стороны создают его с одним id, отдельный OnDataChannel не нужен
	negotiated := true
	id := uint16(0)

	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Negotiated: &negotiated, ID: &id})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	t := &transport{pc: pc, dc: dc, h: h}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if h.OnData != nil {
			h.OnData(msg.Data)
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || h.OnLocalCandidate == nil {
			return
		}

		h.OnLocalCandidate(fromInit(c.ToJSON()))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer connection state", slog.String(constant.State, state.String()))

		if h.OnConnectionState != nil {
			h.OnConnectionState(connectionState(state))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if h.OnRemoteTrack != nil {
			h.OnRemoteTrack(usecase.RemoteTrack{
				ID:       track.ID(),
				StreamID: track.StreamID(),
				Kind:     track.Kind().String(),
				Codec:    track.Codec().MimeType,
			})
		}

		go drainRTCP(receiver)
		go drainTrack(track)
	})

	return t, nil
}

func (t *transport) AddLocalTracks(tracks []webrtc.TrackLocal) error {
	for _, track := range tracks {
		sender, err := t.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}

		go drainSender(sender)
	}

	return nil
}

func (t *transport) AddReceiveOnly() error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		_, err := t.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return fmt.Errorf("add recvonly %s transceiver: %w", kind, err)
		}
	}

	return nil
}

func (t *transport) CreateOffer() (signaling.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}

	return t.commitLocal(offer)
}

func (t *transport) CreateAnswer() (signaling.SessionDescription, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}

	return t.commitLocal(answer)
}

// commitLocal ставит локальное описание. С этого момента pion начинает сбор кандидатов.
func (t *transport) commitLocal(desc webrtc.SessionDescription) (signaling.SessionDescription, error) {
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return signaling.SessionDescription{}, fmt.Errorf("set local %s: %w", desc.Type, err)
	}

	return signaling.SessionDescription{
		Type: signaling.SDPType(desc.Type.String()),
		SDP:  desc.SDP,
	}, nil
}

func (t *transport) SetRemoteDescription(desc signaling.SessionDescription) error {
	err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(desc.Type)),
		SDP:  desc.SDP,
	})
	if err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}

	return nil
}

func (t *transport) HasRemoteDescription() bool {
	return t.pc.RemoteDescription() != nil
}

func (t *transport) AddICECandidate(c signaling.Candidate) error {
	if err := t.pc.AddICECandidate(toInit(c)); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}

	return nil
}

func (t *transport) SendData(data []byte) error {
	if t.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrDataChannelClosed
	}

	return t.dc.Send(data)
}

// Close даёт SCTP дослать то, что лежит в канале данных (обычно bye), и только потом рвёт соединение
func (t *transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	if t.dc.ReadyState() == webrtc.DataChannelStateOpen {
		if !waitDrained(t.dc.BufferedAmount, flushTimeout) {
			slog.Debug("data channel not drained before close", slog.Uint64("buffered", t.dc.BufferedAmount()))
		}

		if err := t.dc.Close(); err != nil {
			slog.Debug("close data channel", slog.Any(constant.Error, err))
		}
	}

	return t.pc.Close()
}

// waitDrained ждёт, пока буфер опустеет. false - не успел за timeout.
func waitDrained(buffered func() uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for buffered() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}

	return true
}

// drainSender вычитывает RTCP отправителя, иначе interceptors не получат NACK и отчёты
func drainSender(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)

	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func drainRTCP(receiver *webrtc.RTPReceiver) {
	for {
		if _, _, err := receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

type trackStats struct {
	packets uint64
	bytes   uint64
	lastSeq uint16
	lost    uint64
}

func (s *trackStats) observe(pkt *rtp.Packet) {
	if s.packets > 0 {
		if gap := pkt.SequenceNumber - s.lastSeq; gap > 1 && gap < 1<<15 {
			s.lost += uint64(gap - 1)
		}
	}

	s.packets++
	s.bytes += uint64(len(pkt.Payload))
	s.lastSeq = pkt.SequenceNumber
}

// drainTrack читает входящий RTP до закрытия трека. Воспроизведение вне этого ядра.
func drainTrack(track *webrtc.TrackRemote) {
	var stats trackStats

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("read rtp", slog.Any(constant.Error, err))
			}
			break
		}

		stats.observe(pkt)
	}

	slog.Info(
		"remote track ended",
		slog.String("kind", track.Kind().String()),
		slog.Uint64("packets", stats.packets),
		slog.Uint64("bytes", stats.bytes),
		slog.Uint64("lost", stats.lost),
	)
}
