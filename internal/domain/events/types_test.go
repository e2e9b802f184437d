package events

import (
	"testing"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

func TestDecodeWrongType(t *testing.T) {
	msg, err := New(TypeRoom, RoomEvent{Room: signaling.Room{Key: "abc"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := Decode[CandidateEvent](msg, TypeCandidate); err == nil {
		t.Fatal("Decode with wrong type: expected error")
	}

	ev, err := Decode[RoomEvent](msg, TypeRoom)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Room.Key != "abc" {
		t.Fatalf("Room.Key=%q, want abc", ev.Room.Key)
	}
}

func TestAppMessageGarbage(t *testing.T) {
	if _, err := DecodeAppMessage([]byte("not msgpack at all")); err == nil {
		t.Fatal("DecodeAppMessage(garbage): expected error")
	}

	b, err := EncodeAppMessage(AppMessage{Kind: AppBye, Origin: "o1"})
	if err != nil {
		t.Fatalf("EncodeAppMessage: %v", err)
	}

	m, err := DecodeAppMessage(b)
	if err != nil {
		t.Fatalf("DecodeAppMessage: %v", err)
	}
	if m.Kind != AppBye || m.Origin != "o1" {
		t.Fatalf("decoded %+v", m)
	}
}
