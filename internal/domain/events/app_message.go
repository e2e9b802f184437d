package events

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// AppMessageKind - тип служебного сообщения по data channel
type AppMessageKind string

const (
	AppBye  AppMessageKind = "bye"
	AppPing AppMessageKind = "ping"
)

// AppMessage - служебное сообщение между пирами поверх data channel
type AppMessage struct {
	Kind   AppMessageKind `msgpack:"k"`
	Origin string         `msgpack:"o,omitempty"`
}

func EncodeAppMessage(m AppMessage) ([]byte, error) {
	b, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode app message: %w", err)
	}

	return b, nil
}

func DecodeAppMessage(b []byte) (AppMessage, error) {
	var m AppMessage

	if err := msgpack.Unmarshal(b, &m); err != nil {
		return AppMessage{}, fmt.Errorf("decode app message: %w", err)
	}

	return m, nil
}
