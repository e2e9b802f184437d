package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/domain/events"
	"github.com/qrave1/PairCall/internal/domain/pairing"
	"github.com/qrave1/PairCall/internal/domain/signaling"
)

const eventBuffer = 64

type SessionConfig struct {
	RetryAttempts uint64
	RetryBase     time.Duration

	// ConflictPolls - сколько раз перечитать комнату после проигранной гонки за роль инициатора
	ConflictPolls uint64

	// IdleTimeout завершает сессию, так и не дождавшуюся собеседника. 0 - без ограничения.
	IdleTimeout time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.RetryBase <= 0 {
		c.RetryBase = 200 * time.Millisecond
	}
	if c.ConflictPolls == 0 {
		c.ConflictPolls = 5
	}

	return c
}

type SessionDeps struct {
	Store        signaling.Store
	NewTransport TransportFactory

	// Media == nil - работаем только на приём
	Media MediaSource
	Keys  KeySource

	Config SessionConfig
}

// SessionHooks вызываются только из event loop сессии, никогда из горутины Start.
// Внутри хука можно звать любые методы сессии, включая Dispose и EndAndFindNext.
type SessionHooks struct {
	OnStatus      func(Status)
	OnPartner     func(ref string)
	OnRemoteTrack func(RemoteTrack)
	OnMessages    func([]signaling.MessageRecord)
	OnError       func(error)
}

// PeerSession - один звонок одного участника в одной комнате
type PeerSession struct {
	deps   SessionDeps
	hooks  SessionHooks
	origin string

	key      string
	identity string

	ctx    context.Context
	cancel context.CancelFunc
	events chan func()
	done   chan struct{}

	mu        sync.Mutex
	started   bool
	running   bool
	disposed  bool
	state     SessionState
	status    Status
	role      signaling.Role
	transport Transport
	media     *LocalMedia
	subs      []signaling.Subscription

	disposeOnce sync.Once

	// дальше - только из event loop
	generation int
	queue      *CandidateQueue
	outbox     *candidateOutbox
	partner    string
}

func NewPeerSession(deps SessionDeps, hooks SessionHooks) *PeerSession {
	deps.Config = deps.Config.withDefaults()

	if deps.Keys == nil {
		deps.Keys = pairing.NewGenerator(nil)
	}

	return &PeerSession{
		deps:   deps,
		hooks:  hooks,
		origin: uuid.NewString(),
		events: make(chan func(), eventBuffer),
		done:   make(chan struct{}),
		state:  StateInitializing,
		outbox: newCandidateOutbox(),
	}
}

// Start захватывает медиа, поднимает транспорт и в фоне выбирает роль и обменивается описаниями.
// ctx ограничивает жизнь всей сессии: его отмена равносильна Dispose.
func (s *PeerSession) Start(ctx context.Context, pairingKey, localIdentity string) error {
	if !pairing.Valid(pairingKey) {
		return &SessionError{Op: "start", Key: pairingKey, Err: signaling.ErrInvalidKey}
	}
	if strings.TrimSpace(localIdentity) == "" {
		return &SessionError{Op: "start", Key: pairingKey, Err: ErrEmptyIdentity}
	}

	s.mu.Lock()
	switch {
	case s.disposed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.started:
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.started = true
	s.key = pairingKey
	s.identity = localIdentity
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	log := s.logger()
	log.Info("starting session")

	if err := s.acquireMedia(log); err != nil {
		return err
	}

	if err := s.openTransport(); err != nil {
		s.Dispose()
		return &SessionError{Op: "start", Key: pairingKey, Err: err}
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.running = true
	s.mu.Unlock()

	context.AfterFunc(s.ctx, s.Dispose)

	go s.run()
	go s.publishCandidates()
	go s.negotiate()
	go s.watchMessages()

	if d := s.deps.Config.IdleTimeout; d > 0 {
		timer := time.AfterFunc(d, func() { s.post(s.onIdleTimeout) })
		context.AfterFunc(s.ctx, func() { timer.Stop() })
	}

	return nil
}

// acquireMedia ошибку захвата не возвращает: сессия продолжает работать только на приём
func (s *PeerSession) acquireMedia(log *slog.Logger) error {
	if s.deps.Media == nil {
		return nil
	}

	media, err := s.deps.Media.Acquire(s.ctx)
	if err != nil {
		merr := &MediaAcquisitionError{Err: err}

		log.Warn("local media unavailable, continuing receive-only", slog.Any(constant.Error, err))

		// loop ещё не запущен, события дождутся его в буфере
		s.post(func() {
			s.setStatus(StatusAwaitingPartner)
			s.emitError(merr)
		})

		return nil
	}

	s.mu.Lock()
	disposed := s.disposed
	if !disposed {
		s.media = media
	}
	s.mu.Unlock()

	// Dispose прошёл, пока Acquire ждал разрешения
	if disposed {
		if media != nil && media.Stop != nil {
			media.Stop()
		}
		return ErrSessionClosed
	}

	return nil
}

// SendMessage дописывает сообщение в комнату от имени локального участника
func (s *PeerSession) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	started, disposed := s.started, s.disposed
	s.mu.Unlock()

	switch {
	case disposed:
		return ErrSessionClosed
	case !started:
		return ErrSessionNotStarted
	}

	err := withRetry(ctx, s.deps.Config, "append message", func(ctx context.Context) error {
		_, err := s.deps.Store.AppendMessage(ctx, s.key, text, s.identity)
		return err
	}, nil)
	if err != nil {
		return &SessionError{Op: "send message", Key: s.key, Err: err}
	}

	return nil
}

// EndAndFindNext завершает текущий звонок и запускает новую сессию на свежем ключе
func (s *PeerSession) EndAndFindNext(ctx context.Context) (*PeerSession, error) {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()

	if identity == "" {
		return nil, ErrSessionNotStarted
	}

	s.Dispose()

	key, err := s.deps.Keys.Key()
	if err != nil {
		return nil, fmt.Errorf("generate pairing key: %w", err)
	}

	next := NewPeerSession(s.deps, s.hooks)

	if err := next.Start(ctx, key, identity); err != nil {
		return nil, err
	}

	return next, nil
}

// Dispose освобождает всё, что держит сессия. Повторные вызовы ничего не делают.
func (s *PeerSession) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		s.state = StateEnded
		key := s.key
		cancel := s.cancel
		running := s.running
		subs := s.subs
		s.subs = nil
		transport := s.transport
		s.transport = nil
		media := s.media
		s.media = nil
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}

		for _, sub := range subs {
			sub.Cancel()
		}

		if transport != nil {
			s.sayBye(key, transport)

			if err := transport.Close(); err != nil {
				slog.Debug("close transport", slog.String(constant.RoomKey, key), slog.Any(constant.Error, err))
			}
		}

		if media != nil && media.Stop != nil {
			media.Stop()
		}

		if !running {
			close(s.done)
		}

		slog.Info("session disposed", slog.String(constant.RoomKey, key), slog.String(constant.Origin, s.origin))
	})
}

func (s *PeerSession) sayBye(key string, transport Transport) {
	bye, err := events.EncodeAppMessage(events.AppMessage{Kind: events.AppBye, Origin: s.origin})
	if err != nil {
		return
	}

	if err := transport.SendData(bye); err != nil {
		slog.Debug("send bye", slog.String(constant.RoomKey, key), slog.Any(constant.Error, err))
	}
}

func (s *PeerSession) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.key
}

func (s *PeerSession) Role() signaling.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.role
}

func (s *PeerSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *PeerSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *PeerSession) Origin() string {
	return s.origin
}

// Done закрывается, когда event loop сессии остановлен
func (s *PeerSession) Done() <-chan struct{} {
	return s.done
}

func (s *PeerSession) logger() *slog.Logger {
	return slog.With(slog.String(constant.RoomKey, s.key), slog.String(constant.Origin, s.origin))
}

// run - event loop. Всё состояние транспорта и очередей меняется только здесь.
func (s *PeerSession) run() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			if s.ctx.Err() != nil {
				return
			}

			ev()
		}
	}
}

func (s *PeerSession) post(ev func()) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// call выполняет fn в event loop и ждёт результата
func (s *PeerSession) call(fn func() error) error {
	result := make(chan error, 1)

	s.post(func() { result <- fn() })

	select {
	case err := <-result:
		return err
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

func (s *PeerSession) currentTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transport
}

// openTransport создаёт транспорт нового поколения. События старых поколений отбрасываются.
func (s *PeerSession) openTransport() error {
	s.generation++
	gen := s.generation

	transport, err := s.deps.NewTransport(TransportHandlers{
		OnLocalCandidate: func(c signaling.Candidate) {
			s.post(func() { s.onLocalCandidate(gen, c) })
		},
		OnRemoteTrack: func(track RemoteTrack) {
			s.post(func() { s.onRemoteTrack(gen, track) })
		},
		OnConnectionState: func(state ConnectionState) {
			s.post(func() { s.onConnectionState(gen, state) })
		},
		OnData: func(data []byte) {
			s.post(func() { s.onData(gen, data) })
		},
	})
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	s.mu.Lock()
	media := s.media
	s.mu.Unlock()

	if media != nil && len(media.Tracks) > 0 {
		err = transport.AddLocalTracks(media.Tracks)
	} else {
		err = transport.AddReceiveOnly()
	}
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("attach media: %w", err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		_ = transport.Close()
		return ErrSessionClosed
	}
	s.transport = transport
	s.mu.Unlock()

	s.queue = NewCandidateQueue(transport)
	s.outbox.reset()

	return nil
}

// resetTransport бросает транспорт инициатора после проигранной гонки
func (s *PeerSession) resetTransport() error {
	if old := s.currentTransport(); old != nil {
		if err := old.Close(); err != nil {
			s.logger().Debug("close abandoned transport", slog.Any(constant.Error, err))
		}
	}

	return s.openTransport()
}

func (s *PeerSession) addSubscription(op string, sub signaling.Subscription) {
	s.mu.Lock()
	disposed := s.disposed
	if !disposed {
		s.subs = append(s.subs, sub)
	}
	s.mu.Unlock()

	if disposed {
		sub.Cancel()
		return
	}

	if done := sub.Done(); done != nil {
		go s.superviseSubscription(op, sub, done)
	}
}

// superviseSubscription переводит окончательный обрыв подписки в signaling-unavailable
func (s *PeerSession) superviseSubscription(op string, sub signaling.Subscription, done <-chan struct{}) {
	select {
	case <-s.ctx.Done():
		return
	case <-done:
	}

	if err := sub.Err(); err != nil {
		s.post(func() { s.fail(op, fmt.Errorf("%w: %w", ErrSignalingUnavailable, err)) })
	}
}

func (s *PeerSession) setState(state SessionState) {
	s.mu.Lock()
	if s.disposed || s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.logger().Debug("session state changed", slog.String(constant.State, string(state)))

	if status, ok := state.status(); ok {
		s.setStatus(status)
	}
}

func (s *PeerSession) setStatus(status Status) {
	s.mu.Lock()
	if s.disposed || s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	s.logger().Info("session status changed", slog.String(constant.Status, string(status)))

	if s.hooks.OnStatus != nil {
		s.hooks.OnStatus(status)
	}
}

func (s *PeerSession) emitError(err error) {
	if s.isDisposed() || s.hooks.OnError == nil {
		return
	}

	s.hooks.OnError(err)
}

func (s *PeerSession) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.disposed
}

// fail - сигналинг сломан окончательно. Сессия остаётся жива до Dispose, но статус говорит правду.
func (s *PeerSession) fail(op string, err error) {
	if errors.Is(err, ErrSessionClosed) || errors.Is(err, context.Canceled) {
		return
	}

	s.logger().Error("session failed", slog.String("op", op), slog.Any(constant.Error, err))

	s.setStatus(StatusSignalingUnavailable)
	s.emitError(&SessionError{Op: op, Key: s.key, Err: err})
}

func (s *PeerSession) setPartner(ref string) {
	if ref == "" || ref == s.partner {
		return
	}

	s.partner = ref

	if s.hooks.OnPartner != nil && !s.isDisposed() {
		s.hooks.OnPartner(ref)
	}
}

func (s *PeerSession) onLocalCandidate(gen int, c signaling.Candidate) {
	if gen != s.generation {
		return
	}

	s.outbox.push(c)
}

func (s *PeerSession) onRemoteCandidate(rec signaling.CandidateRecord) {
	if rec.Origin == s.origin {
		return
	}

	if err := s.queue.EnqueueOrApply(rec.Candidate); err != nil {
		s.logger().Warn("apply remote candidate", slog.Int64("seq", rec.Seq), slog.Any(constant.Error, err))
	}
}

// applyRemoteDescription ставит описание собеседника ровно один раз и сливает очередь кандидатов
func (s *PeerSession) applyRemoteDescription(desc signaling.SessionDescription) error {
	transport := s.currentTransport()
	if transport == nil {
		return ErrSessionClosed
	}

	if transport.HasRemoteDescription() {
		return nil
	}

	if err := transport.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote %s: %w", ErrTransportFailure, desc.Type, err)
	}

	if err := s.queue.Flush(); err != nil {
		s.logger().Warn("flush queued candidates", slog.Any(constant.Error, err))
	}

	return nil
}

func (s *PeerSession) onRoom(room signaling.Room) {
	if s.role != signaling.RoleInitiator || room.Answer == nil {
		return
	}

	transport := s.currentTransport()
	if transport == nil || transport.HasRemoteDescription() {
		return
	}

	s.setState(StateDescriptionsExchanging)
	s.setPartner(room.JoinerRef)

	if err := s.applyRemoteDescription(*room.Answer); err != nil {
		s.fail("apply answer", err)
	}
}

func (s *PeerSession) onRemoteTrack(gen int, track RemoteTrack) {
	if gen != s.generation {
		return
	}

	s.logger().Info("remote track", slog.String("kind", track.Kind), slog.String("codec", track.Codec))

	if s.hooks.OnRemoteTrack != nil && !s.isDisposed() {
		s.hooks.OnRemoteTrack(track)
	}

	s.setState(StateConnected)
	s.setStatus(StatusConnected)
}

func (s *PeerSession) onConnectionState(gen int, state ConnectionState) {
	if gen != s.generation {
		return
	}

	s.logger().Debug("transport state changed", slog.String("transport", state.String()))

	switch state {
	case ConnectionConnected:
		if s.State() == StateConnected {
			s.setStatus(StatusConnected)
		}
	case ConnectionDisconnected, ConnectionClosed:
		if s.State() == StateConnected {
			s.transportLost(state)
		}
	case ConnectionFailed:
		s.transportLost(state)
	}
}

func (s *PeerSession) transportLost(state ConnectionState) {
	s.setStatus(StatusPartnerDisconnected)
	s.emitError(&SessionError{Op: "transport", Key: s.key, Err: fmt.Errorf("%w: %s", ErrTransportFailure, state)})
}

func (s *PeerSession) onData(gen int, data []byte) {
	if gen != s.generation {
		return
	}

	msg, err := events.DecodeAppMessage(data)
	if err != nil {
		s.logger().Debug("unknown data channel message", slog.Any(constant.Error, err))
		return
	}

	if msg.Kind == events.AppBye && msg.Origin != s.origin {
		s.setStatus(StatusPartnerDisconnected)
		s.emitError(&SessionError{Op: "transport", Key: s.key, Err: ErrPartnerLeft})
	}
}

func (s *PeerSession) onIdleTimeout() {
	switch s.State() {
	case StateInitializing, StateAwaitingPartner:
	default:
		return
	}

	s.setStatus(StatusSignalingUnavailable)
	s.emitError(&SessionError{Op: "await partner", Key: s.key, Err: ErrIdleTimeout})
	s.Dispose()
}

func (s *PeerSession) watchMessages() {
	var sub signaling.Subscription

	err := withRetry(s.ctx, s.deps.Config, "watch messages", func(ctx context.Context) error {
		var err error
		sub, err = s.deps.Store.WatchMessages(ctx, s.key, func(msgs []signaling.MessageRecord) {
			ordered := append([]signaling.MessageRecord(nil), msgs...)
			signaling.SortMessages(ordered)

			s.post(func() {
				if s.hooks.OnMessages != nil && !s.isDisposed() {
					s.hooks.OnMessages(ordered)
				}
			})
		})
		return err
	}, nil)
	if err != nil {
		s.post(func() { s.fail("watch messages", err) })
		return
	}

	s.addSubscription("watch messages", sub)
}

func (s *PeerSession) watchCandidates() error {
	var sub signaling.Subscription

	err := withRetry(s.ctx, s.deps.Config, "watch candidates", func(ctx context.Context) error {
		var err error
		sub, err = s.deps.Store.WatchCandidates(ctx, s.key, func(rec signaling.CandidateRecord) {
			s.post(func() { s.onRemoteCandidate(rec) })
		})
		return err
	}, nil)
	if err != nil {
		return err
	}

	s.addSubscription("watch candidates", sub)

	return nil
}

// publishCandidates публикует локальных кандидатов строго по порядку их появления
func (s *PeerSession) publishCandidates() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.outbox.wake:
		}

		batch, role := s.outbox.take()

		for _, c := range batch {
			err := withRetry(s.ctx, s.deps.Config, "publish candidate", func(ctx context.Context) error {
				return s.deps.Store.PublishCandidate(ctx, s.key, s.origin, role, c)
			}, s.onStoreRetry)
			if err != nil {
				s.post(func() { s.fail("publish candidate", err) })
				return
			}
		}
	}
}

func (s *PeerSession) onStoreRetry(attempt int, _ error) {
	if attempt == 1 {
		s.post(func() {
			if s.State() != StateConnected {
				s.setStatus(StatusConnecting)
			}
		})
	}
}
