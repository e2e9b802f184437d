package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sethvargo/go-retry"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/domain/signaling"
)

// negotiate выбирает роль и доводит обмен описаниями до фиксации в хранилище.
// Дальше сессию ведут подписки и event loop.
func (s *PeerSession) negotiate() {
	if err := s.exchange(s.ctx); err != nil {
		if s.ctx.Err() != nil {
			return
		}

		s.post(func() { s.fail("exchange descriptions", err) })
	}
}

func (s *PeerSession) exchange(ctx context.Context) error {
	room, err := s.readRoom(ctx)

	switch {
	case errors.Is(err, signaling.ErrRoomNotFound):
		err = s.runInitiator(ctx)
		if !errors.Is(err, signaling.ErrRoomConflict) {
			return err
		}

		s.logger().Info("lost initiator race, joining as responder")

		if err := s.call(s.resetTransport); err != nil {
			return err
		}

		room, err = s.readRoomAfterConflict(ctx)
		if err != nil {
			return err
		}

		return s.runResponder(ctx, room)
	case err != nil:
		return err
	default:
		return s.runResponder(ctx, room)
	}
}

func (s *PeerSession) readRoom(ctx context.Context) (signaling.Room, error) {
	var room signaling.Room

	err := withRetry(ctx, s.deps.Config, "read room", func(ctx context.Context) error {
		var err error
		room, err = s.deps.Store.ReadRoom(ctx, s.key)
		return err
	}, s.onStoreRetry)

	return room, err
}

// readRoomAfterConflict ждёт, пока комната победителя станет видна.
// Хранилище может отдать конфликт раньше, чем чтение увидит созданную комнату.
func (s *PeerSession) readRoomAfterConflict(ctx context.Context) (signaling.Room, error) {
	backoff := retry.WithMaxRetries(s.deps.Config.ConflictPolls, retry.NewConstant(s.deps.Config.RetryBase))

	var room signaling.Room

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		room, err = s.readRoom(ctx)
		if errors.Is(err, signaling.ErrRoomNotFound) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, signaling.ErrRoomNotFound) {
		return room, fmt.Errorf("%w: room vanished after conflict: %w", ErrSignalingUnavailable, err)
	}

	return room, err
}

func (s *PeerSession) runInitiator(ctx context.Context) error {
	var offer signaling.SessionDescription

	err := s.call(func() error {
		var err error
		offer, err = s.currentTransport().CreateOffer()
		if err != nil {
			return fmt.Errorf("%w: create offer: %w", ErrTransportFailure, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = withRetry(ctx, s.deps.Config, "create room", func(ctx context.Context) error {
		return s.deps.Store.CreateRoom(ctx, s.key, offer, s.identity)
	}, s.onStoreRetry)
	if err != nil {
		return err
	}

	err = s.call(func() error {
		s.commitRole(signaling.RoleInitiator)
		s.setState(StateAwaitingPartner)
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.watchCandidates(); err != nil {
		return err
	}

	var sub signaling.Subscription

	err = withRetry(ctx, s.deps.Config, "watch room", func(ctx context.Context) error {
		var err error
		sub, err = s.deps.Store.WatchRoom(ctx, s.key, func(room signaling.Room) {
			s.post(func() { s.onRoom(room) })
		})
		return err
	}, s.onStoreRetry)
	if err != nil {
		return err
	}

	s.addSubscription("watch room", sub)

	return nil
}

func (s *PeerSession) runResponder(ctx context.Context, room signaling.Room) error {
	if room.Phase() == signaling.PhaseAnswered {
		return ErrRoomOccupied
	}
	if room.Offer == nil {
		return fmt.Errorf("%w: room has no offer", ErrSignalingUnavailable)
	}

	var answer signaling.SessionDescription

	err := s.call(func() error {
		s.setState(StateDescriptionsExchanging)
		s.setPartner(room.CreatorRef)

		if err := s.applyRemoteDescription(*room.Offer); err != nil {
			return err
		}

		var err error
		answer, err = s.currentTransport().CreateAnswer()
		if err != nil {
			return fmt.Errorf("%w: create answer: %w", ErrTransportFailure, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = withRetry(ctx, s.deps.Config, "set answer", func(ctx context.Context) error {
		return s.deps.Store.SetAnswer(ctx, s.key, answer, s.identity)
	}, s.onStoreRetry)
	if errors.Is(err, signaling.ErrAnswerAlreadySet) {
		return ErrRoomOccupied
	}
	if err != nil {
		return err
	}

	err = s.call(func() error {
		s.commitRole(signaling.RoleResponder)
		return nil
	})
	if err != nil {
		return err
	}

	return s.watchCandidates()
}

// commitRole фиксирует роль и открывает публикацию локальных кандидатов
func (s *PeerSession) commitRole(role signaling.Role) {
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()

	s.logger().Info("role committed", slog.String(constant.Role, string(role)))

	s.outbox.openFor(role)
}
