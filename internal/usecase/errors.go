package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrMediaAcquisition     = errors.New("local media unavailable")
	ErrSignalingUnavailable = errors.New("signaling unavailable")
	ErrTransportFailure     = errors.New("transport failure")
	ErrPartnerLeft          = errors.New("partner left the call")
	ErrRoomOccupied         = errors.New("room already has two participants")
	ErrIdleTimeout          = errors.New("no partner joined before idle timeout")
	ErrSessionStarted       = errors.New("session already started")
	ErrSessionNotStarted    = errors.New("session not started")
	ErrSessionClosed        = errors.New("session closed")
	ErrEmptyMessage         = errors.New("empty message")
	ErrEmptyIdentity        = errors.New("empty identity")
)

// MediaAcquisitionError - камера/микрофон недоступны. Сессия продолжает сигналинг без локального захвата.
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMediaAcquisition, e.Err)
}

func (e *MediaAcquisitionError) Unwrap() []error {
	return []error{ErrMediaAcquisition, e.Err}
}

// SessionError - ошибка операции сессии, отдаётся через SessionHooks.OnError
type SessionError struct {
	Op  string
	Key string
	Err error
}

func (e *SessionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
