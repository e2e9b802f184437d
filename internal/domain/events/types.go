package events

import (
	"encoding/json"
	"fmt"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

// Типы событий watch-стримов
const (
	TypeRoom      = "room"
	TypeCandidate = "candidate"
	TypeMessages  = "messages"
	TypeError     = "error"
)

// Message - общее событие
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RoomEvent - текущее состояние комнаты
type RoomEvent struct {
	Room signaling.Room `json:"room"`
}

// CandidateEvent - одна запись ICE кандидата
type CandidateEvent struct {
	Record signaling.CandidateRecord `json:"record"`
}

// MessagesEvent - полный упорядоченный список сообщений комнаты
type MessagesEvent struct {
	Messages []signaling.MessageRecord `json:"messages"`
}

// ErrorEvent - ошибка на стороне сервера, после неё стрим закрывается
type ErrorEvent struct {
	Error string `json:"error"`
}

func New(typ string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s event: %w", typ, err)
	}

	return Message{Type: typ, Data: raw}, nil
}

// Decode разбирает Data в ожидаемый тип события
func Decode[T any](msg Message, want string) (T, error) {
	var v T

	if msg.Type != want {
		return v, fmt.Errorf("unexpected event type %q, want %q", msg.Type, want)
	}

	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s event: %w", want, err)
	}

	return v, nil
}
