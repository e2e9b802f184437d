package repository

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

func TestRoomRow_ToDomain(t *testing.T) {
	row := roomRow{Key: "abc123", OfferSDP: "v=0 offer", CreatorRef: "alice"}

	room := row.toDomain()
	if room.Phase() != signaling.PhaseOffered {
		t.Fatalf("phase=%v, want %v", room.Phase(), signaling.PhaseOffered)
	}
	if room.Answer != nil || room.JoinerRef != "" {
		t.Fatalf("room=%+v, want no answer", room)
	}

	row.AnswerSDP = sql.NullString{String: "v=0 answer", Valid: true}
	row.JoinerRef = sql.NullString{String: "bob", Valid: true}

	room = row.toDomain()
	if room.Phase() != signaling.PhaseAnswered {
		t.Fatalf("phase=%v, want %v", room.Phase(), signaling.PhaseAnswered)
	}
	if room.Answer.Type != signaling.SDPTypeAnswer || room.JoinerRef != "bob" {
		t.Fatalf("room=%+v, want answered by bob", room)
	}
}

func TestCandidateRow_ToDomain(t *testing.T) {
	row := candidateRow{ID: 7, RoomKey: "abc123", Origin: "o1", Role: "responder", Candidate: "candidate:1"}

	rec := row.toDomain()
	if rec.Seq != 7 || rec.Role != signaling.RoleResponder {
		t.Fatalf("rec=%+v, want seq 7 responder", rec)
	}
	if rec.Candidate.SDPMid != nil || rec.Candidate.SDPMLineIndex != nil || rec.Candidate.UsernameFragment != nil {
		t.Fatalf("optional fields must stay nil for NULL columns: %+v", rec.Candidate)
	}

	row.SDPMid = sql.NullString{String: "0", Valid: true}
	row.SDPMLineIndex = sql.NullInt32{Int32: 1, Valid: true}
	row.UsernameFragment = sql.NullString{String: "uf", Valid: true}

	rec = row.toDomain()
	if *rec.Candidate.SDPMid != "0" || *rec.Candidate.SDPMLineIndex != 1 || *rec.Candidate.UsernameFragment != "uf" {
		t.Fatalf("candidate=%+v, want mid 0 index 1 ufrag uf", rec.Candidate)
	}
}

func TestPoll_StopsOnCancel(t *testing.T) {
	r := &rendezvousRepo{pollEvery: time.Millisecond}

	var ticks atomic.Int64
	sub := r.poll(context.Background(), "room", "abc123", func(context.Context) error {
		ticks.Add(1)
		return nil
	})

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("ticks=%d, want at least 3", ticks.Load())
	}

	sub.Cancel()
	time.Sleep(20 * time.Millisecond)

	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)

	if got := ticks.Load(); got != after {
		t.Fatalf("ticks grew from %d to %d after Cancel", after, got)
	}
}
