package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/qrave1/PairCall/internal/domain/pairing"
	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/infra/adapters/memory"
)

func offer(sdp string) signaling.SessionDescription {
	return signaling.SessionDescription{Type: signaling.SDPTypeOffer, SDP: sdp}
}

func answer(sdp string) signaling.SessionDescription {
	return signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: sdp}
}

func TestRendezvousUsecase_RoomLifecycle(t *testing.T) {
	ctx := context.Background()
	uc := NewRendezvousUsecase(memory.NewRendezvousStore(), nil)

	if _, err := uc.GetRoom(ctx, "room01"); !errors.Is(err, signaling.ErrRoomNotFound) {
		t.Fatalf("GetRoom(absent) err=%v, want ErrRoomNotFound", err)
	}

	room, err := uc.CreateRoom(ctx, "room01", offer("v=0 offer"), "alice")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.Phase() != signaling.PhaseOffered || room.CreatorRef != "alice" {
		t.Fatalf("room=%+v, want offered by alice", room)
	}

	if _, err := uc.CreateRoom(ctx, "room01", offer("v=0 other"), "bob"); !errors.Is(err, signaling.ErrRoomConflict) {
		t.Fatalf("second CreateRoom err=%v, want ErrRoomConflict", err)
	}

	room, err = uc.Answer(ctx, "room01", answer("v=0 answer"), "bob")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if room.Phase() != signaling.PhaseAnswered || room.JoinerRef != "bob" {
		t.Fatalf("room=%+v, want answered by bob", room)
	}

	if _, err := uc.Answer(ctx, "room01", answer("v=0 late"), "carol"); !errors.Is(err, signaling.ErrAnswerAlreadySet) {
		t.Fatalf("second Answer err=%v, want ErrAnswerAlreadySet", err)
	}

	if _, err := uc.Answer(ctx, "nope01", answer("v=0"), "bob"); !errors.Is(err, signaling.ErrRoomNotFound) {
		t.Fatalf("Answer(absent) err=%v, want ErrRoomNotFound", err)
	}
}

func TestRendezvousUsecase_Validation(t *testing.T) {
	ctx := context.Background()
	uc := NewRendezvousUsecase(memory.NewRendezvousStore(), nil)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "bad key",
			call: func() error { _, err := uc.CreateRoom(ctx, "bad/key", offer("v=0"), "alice"); return err },
			want: signaling.ErrInvalidKey,
		},
		{
			name: "answer as offer",
			call: func() error { _, err := uc.CreateRoom(ctx, "room02", answer("v=0"), "alice"); return err },
			want: ErrInvalidDescription,
		},
		{
			name: "empty sdp",
			call: func() error { _, err := uc.CreateRoom(ctx, "room02", offer("  "), "alice"); return err },
			want: ErrInvalidDescription,
		},
		{
			name: "unknown role",
			call: func() error {
				return uc.PublishCandidate(ctx, "room02", "o1", "observer", signaling.Candidate{Candidate: "candidate:1"})
			},
			want: ErrInvalidCandidate,
		},
		{
			name: "empty candidate",
			call: func() error {
				return uc.PublishCandidate(ctx, "room02", "o1", signaling.RoleInitiator, signaling.Candidate{})
			},
			want: ErrInvalidCandidate,
		},
		{
			name: "missing origin",
			call: func() error {
				return uc.PublishCandidate(ctx, "room02", "", signaling.RoleInitiator, signaling.Candidate{Candidate: "candidate:1"})
			},
			want: ErrInvalidOrigin,
		},
		{
			name: "blank message",
			call: func() error { _, err := uc.AppendMessage(ctx, "room02", " \n", "alice"); return err },
			want: ErrInvalidMessage,
		},
		{
			name: "long message",
			call: func() error {
				_, err := uc.AppendMessage(ctx, "room02", strings.Repeat("я", MaxMessageLength+1), "alice")
				return err
			},
			want: ErrInvalidMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Fatalf("err=%v, want %v", err, tt.want)
			}
		})
	}
}

func TestRendezvousUsecase_NewKey(t *testing.T) {
	uc := NewRendezvousUsecase(memory.NewRendezvousStore(), pairing.NewGenerator(bytes.NewReader([]byte{0, 1, 2, 35, 0, 1, 0, 0, 0, 0, 0, 0})))

	key, err := uc.NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	if key != "012z01" {
		t.Fatalf("NewKey()=%q, want 012z01", key)
	}

	if _, err := uc.NewKey(); err == nil {
		t.Fatal("NewKey on exhausted source: expected error")
	}
}

func TestRendezvousUsecase_MessageTrimmed(t *testing.T) {
	ctx := context.Background()
	uc := NewRendezvousUsecase(memory.NewRendezvousStore(), nil)

	msg, err := uc.AppendMessage(ctx, "room03", "  hello  ", "alice")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if msg.Text != "hello" || msg.SenderRef != "alice" || msg.RoomKey != "room03" {
		t.Fatalf("msg=%+v", msg)
	}
}
