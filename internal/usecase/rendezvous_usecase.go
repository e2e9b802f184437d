package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/application/metric"
	"github.com/qrave1/PairCall/internal/domain/pairing"
	"github.com/qrave1/PairCall/internal/domain/signaling"
)

const (
	MaxMessageLength = 2000
	maxSDPLength     = 64 << 10
)

var (
	ErrInvalidDescription = errors.New("invalid session description")
	ErrInvalidCandidate   = errors.New("invalid ice candidate")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrInvalidOrigin      = errors.New("invalid candidate origin")
)

// RendezvousUsecase - серверная сторона рандеву: валидирует запросы и пишет метрики поверх хранилища
type RendezvousUsecase interface {
	NewKey() (string, error)

	GetRoom(ctx context.Context, key string) (signaling.Room, error)
	CreateRoom(ctx context.Context, key string, offer signaling.SessionDescription, participant string) (signaling.Room, error)
	Answer(ctx context.Context, key string, answer signaling.SessionDescription, participant string) (signaling.Room, error)

	PublishCandidate(ctx context.Context, key, origin string, role signaling.Role, candidate signaling.Candidate) error
	AppendMessage(ctx context.Context, key, text, participant string) (signaling.MessageRecord, error)

	WatchRoom(ctx context.Context, key string, onChange func(signaling.Room)) (signaling.Subscription, error)
	WatchCandidates(ctx context.Context, key string, onEach func(signaling.CandidateRecord)) (signaling.Subscription, error)
	WatchMessages(ctx context.Context, key string, onSnapshot func([]signaling.MessageRecord)) (signaling.Subscription, error)
}

type rendezvousUsecase struct {
	store signaling.Store
	keys  KeySource
}

func NewRendezvousUsecase(store signaling.Store, keys KeySource) RendezvousUsecase {
	if keys == nil {
		keys = pairing.NewGenerator(nil)
	}

	return &rendezvousUsecase{store: store, keys: keys}
}

func (u *rendezvousUsecase) NewKey() (string, error) {
	key, err := u.keys.Key()
	if err != nil {
		return "", fmt.Errorf("generate pairing key: %w", err)
	}

	return key, nil
}

func checkKey(key string) error {
	if !pairing.Valid(key) {
		return signaling.ErrInvalidKey
	}

	return nil
}

func checkDescription(desc signaling.SessionDescription, want signaling.SDPType) error {
	if desc.Type != want {
		return fmt.Errorf("%w: type %q, want %q", ErrInvalidDescription, desc.Type, want)
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidDescription)
	}
	if len(desc.SDP) > maxSDPLength {
		return fmt.Errorf("%w: sdp too large", ErrInvalidDescription)
	}

	return nil
}

func (u *rendezvousUsecase) GetRoom(ctx context.Context, key string) (signaling.Room, error) {
	if err := checkKey(key); err != nil {
		return signaling.Room{}, err
	}

	return u.store.ReadRoom(ctx, key)
}

func (u *rendezvousUsecase) CreateRoom(
	ctx context.Context,
	key string,
	offer signaling.SessionDescription,
	participant string,
) (signaling.Room, error) {
	if err := checkKey(key); err != nil {
		return signaling.Room{}, err
	}
	if err := checkDescription(offer, signaling.SDPTypeOffer); err != nil {
		return signaling.Room{}, err
	}

	err := u.store.CreateRoom(ctx, key, offer, participant)
	if errors.Is(err, signaling.ErrRoomConflict) {
		metric.RecordRoomOperation(metric.RoomConflict)
		return signaling.Room{}, err
	}
	if err != nil {
		return signaling.Room{}, fmt.Errorf("create room: %w", err)
	}

	metric.RecordRoomOperation(metric.RoomCreated)

	slog.Info(
		"room created",
		slog.String(constant.RoomKey, key),
		slog.String(constant.Participant, participant),
	)

	return u.store.ReadRoom(ctx, key)
}

func (u *rendezvousUsecase) Answer(
	ctx context.Context,
	key string,
	answer signaling.SessionDescription,
	participant string,
) (signaling.Room, error) {
	if err := checkKey(key); err != nil {
		return signaling.Room{}, err
	}
	if err := checkDescription(answer, signaling.SDPTypeAnswer); err != nil {
		return signaling.Room{}, err
	}

	err := u.store.SetAnswer(ctx, key, answer, participant)
	switch {
	case errors.Is(err, signaling.ErrAnswerAlreadySet):
		metric.RecordRoomOperation(metric.RoomAnswerConflict)
		return signaling.Room{}, err
	case errors.Is(err, signaling.ErrRoomNotFound):
		return signaling.Room{}, err
	case err != nil:
		return signaling.Room{}, fmt.Errorf("set answer: %w", err)
	}

	metric.RecordRoomOperation(metric.RoomAnswered)

	slog.Info(
		"room answered",
		slog.String(constant.RoomKey, key),
		slog.String(constant.Participant, participant),
	)

	return u.store.ReadRoom(ctx, key)
}

func (u *rendezvousUsecase) PublishCandidate(
	ctx context.Context,
	key, origin string,
	role signaling.Role,
	candidate signaling.Candidate,
) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: role %q", ErrInvalidCandidate, role)
	}
	if strings.TrimSpace(origin) == "" || len(origin) > 128 {
		return ErrInvalidOrigin
	}
	if strings.TrimSpace(candidate.Candidate) == "" {
		return fmt.Errorf("%w: empty candidate", ErrInvalidCandidate)
	}

	if err := u.store.PublishCandidate(ctx, key, origin, role, candidate); err != nil {
		return fmt.Errorf("publish candidate: %w", err)
	}

	metric.IncrementCandidates()

	return nil
}

func (u *rendezvousUsecase) AppendMessage(ctx context.Context, key, text, participant string) (signaling.MessageRecord, error) {
	if err := checkKey(key); err != nil {
		return signaling.MessageRecord{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return signaling.MessageRecord{}, fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return signaling.MessageRecord{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidMessage, MaxMessageLength)
	}

	msg, err := u.store.AppendMessage(ctx, key, text, participant)
	if err != nil {
		return signaling.MessageRecord{}, fmt.Errorf("append message: %w", err)
	}

	metric.IncrementMessages()

	return msg, nil
}

func (u *rendezvousUsecase) WatchRoom(ctx context.Context, key string, onChange func(signaling.Room)) (signaling.Subscription, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	return u.store.WatchRoom(ctx, key, onChange)
}

func (u *rendezvousUsecase) WatchCandidates(
	ctx context.Context,
	key string,
	onEach func(signaling.CandidateRecord),
) (signaling.Subscription, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	return u.store.WatchCandidates(ctx, key, onEach)
}

func (u *rendezvousUsecase) WatchMessages(
	ctx context.Context,
	key string,
	onSnapshot func([]signaling.MessageRecord),
) (signaling.Subscription, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	return u.store.WatchMessages(ctx, key, onSnapshot)
}
