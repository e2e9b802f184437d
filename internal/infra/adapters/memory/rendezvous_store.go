package memory

import (
	"context"
	"sync"
	"time"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

type roomEntry struct {
	room       *signaling.Room
	candidates []signaling.CandidateRecord
	messages   []signaling.MessageRecord

	roomSubs      map[*feed[signaling.Room]]struct{}
	candidateSubs map[*feed[signaling.CandidateRecord]]struct{}
	messageSubs   map[*feed[[]signaling.MessageRecord]]struct{}
}

type rendezvousStore struct {
	// rooms хранит map[pairing_key]*roomEntry
	rooms map[string]*roomEntry
	mu    sync.Mutex

	candidateSeq int64
	messageSeq   int64

	now func() time.Time
}

// NewRendezvousStore - хранилище комнат, кандидатов и сообщений в памяти процесса.
// Используется сервером при STORE=memory и в тестах.
func NewRendezvousStore() signaling.Store {
	return &rendezvousStore{
		rooms: make(map[string]*roomEntry),
		now:   time.Now,
	}
}

func (s *rendezvousStore) entry(key string) *roomEntry {
	e, ok := s.rooms[key]
	if !ok {
		e = &roomEntry{
			roomSubs:      make(map[*feed[signaling.Room]]struct{}),
			candidateSubs: make(map[*feed[signaling.CandidateRecord]]struct{}),
			messageSubs:   make(map[*feed[[]signaling.MessageRecord]]struct{}),
		}
		s.rooms[key] = e
	}

	return e
}

func copyRoom(r *signaling.Room) signaling.Room {
	out := *r
	if r.Offer != nil {
		offer := *r.Offer
		out.Offer = &offer
	}
	if r.Answer != nil {
		answer := *r.Answer
		out.Answer = &answer
	}

	return out
}

func (s *rendezvousStore) ReadRoom(ctx context.Context, key string) (signaling.Room, error) {
	if err := ctx.Err(); err != nil {
		return signaling.Room{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[key]
	if !ok || e.room == nil {
		return signaling.Room{}, signaling.ErrRoomNotFound
	}

	return copyRoom(e.room), nil
}

func (s *rendezvousStore) CreateRoom(ctx context.Context, key string, offer signaling.SessionDescription, creatorRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	if e.room != nil {
		return signaling.ErrRoomConflict
	}

	e.room = &signaling.Room{
		Key:        key,
		Offer:      &offer,
		CreatorRef: creatorRef,
		CreatedAt:  s.now().UTC(),
	}

	s.notifyRoom(e)

	return nil
}

func (s *rendezvousStore) SetAnswer(ctx context.Context, key string, answer signaling.SessionDescription, joinerRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[key]
	if !ok || e.room == nil {
		return signaling.ErrRoomNotFound
	}

	if e.room.Answer != nil {
		return signaling.ErrAnswerAlreadySet
	}

	e.room.Answer = &answer
	e.room.JoinerRef = joinerRef

	s.notifyRoom(e)

	return nil
}

// notifyRoom вызывается под s.mu
func (s *rendezvousStore) notifyRoom(e *roomEntry) {
	for sub := range e.roomSubs {
		sub.push(copyRoom(e.room))
	}
}

func (s *rendezvousStore) WatchRoom(ctx context.Context, key string, onChange func(signaling.Room)) (signaling.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	sub := newFeed(onChange)
	e.roomSubs[sub] = struct{}{}

	if e.room != nil {
		sub.push(copyRoom(e.room))
	}

	return s.subscription(ctx, sub.cancel, func() { delete(e.roomSubs, sub) }), nil
}

func (s *rendezvousStore) PublishCandidate(
	ctx context.Context,
	key, origin string,
	role signaling.Role,
	candidate signaling.Candidate,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.candidateSeq++

	rec := signaling.CandidateRecord{
		Seq:       s.candidateSeq,
		RoomKey:   key,
		Origin:    origin,
		Role:      role,
		Candidate: candidate,
		CreatedAt: s.now().UTC(),
	}

	e := s.entry(key)
	e.candidates = append(e.candidates, rec)

	for sub := range e.candidateSubs {
		sub.push(rec)
	}

	return nil
}

func (s *rendezvousStore) WatchCandidates(ctx context.Context, key string, onEach func(signaling.CandidateRecord)) (signaling.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	sub := newFeed(onEach)
	e.candidateSubs[sub] = struct{}{}

	for _, rec := range e.candidates {
		sub.push(rec)
	}

	return s.subscription(ctx, sub.cancel, func() { delete(e.candidateSubs, sub) }), nil
}

func (s *rendezvousStore) AppendMessage(ctx context.Context, key, text, senderRef string) (signaling.MessageRecord, error) {
	if err := ctx.Err(); err != nil {
		return signaling.MessageRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messageSeq++

	msg := signaling.MessageRecord{
		ID:        s.messageSeq,
		RoomKey:   key,
		Text:      text,
		SenderRef: senderRef,
		Timestamp: s.now().UTC(),
	}

	e := s.entry(key)
	e.messages = append(e.messages, msg)
	signaling.SortMessages(e.messages)

	for sub := range e.messageSubs {
		sub.push(snapshot(e.messages))
	}

	return msg, nil
}

func (s *rendezvousStore) WatchMessages(ctx context.Context, key string, onSnapshot func([]signaling.MessageRecord)) (signaling.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	sub := newFeed(onSnapshot)
	e.messageSubs[sub] = struct{}{}

	if len(e.messages) > 0 {
		sub.push(snapshot(e.messages))
	}

	return s.subscription(ctx, sub.cancel, func() { delete(e.messageSubs, sub) }), nil
}

func snapshot(msgs []signaling.MessageRecord) []signaling.MessageRecord {
	out := make([]signaling.MessageRecord, len(msgs))
	copy(out, msgs)

	return out
}

// subscription отписывает при Cancel или при отмене ctx
func (s *rendezvousStore) subscription(ctx context.Context, stop func(), detach func()) signaling.Subscription {
	var once sync.Once

	cancel := func() {
		once.Do(func() {
			stop()

			s.mu.Lock()
			detach()
			s.mu.Unlock()
		})
	}

	context.AfterFunc(ctx, cancel)

	return signaling.SubscriptionFunc(cancel)
}
