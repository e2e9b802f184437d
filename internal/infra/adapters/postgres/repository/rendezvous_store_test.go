package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

const (
	insertRoomSQL = "INSERT INTO rooms (key, offer_sdp, creator_ref) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING"
	setAnswerSQL  = "UPDATE rooms SET answer_sdp = $2, joiner_ref = $3, answered_at = now() WHERE key = $1 AND answer_sdp IS NULL"
	selectRoomSQL = "SELECT key, offer_sdp, answer_sdp, creator_ref, joiner_ref, created_at FROM rooms WHERE key = $1"
	candidatesSQL = "SELECT id, room_key, origin, role, candidate, sdp_mid, sdp_mline_index, username_fragment, created_at FROM room_candidates"
)

var (
	testOffer  = signaling.SessionDescription{Type: signaling.SDPTypeOffer, SDP: "v=0 offer"}
	testAnswer = signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: "v=0 answer"}
)

func newMockRepo(t *testing.T) (*rendezvousRepo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &rendezvousRepo{db: sqlx.NewDb(db, "pgx"), pollEvery: time.Millisecond}, mock
}

func roomRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"key", "offer_sdp", "answer_sdp", "creator_ref", "joiner_ref", "created_at"})
}

func candidateRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "room_key", "origin", "role", "candidate", "sdp_mid", "sdp_mline_index", "username_fragment", "created_at",
	})

	for _, id := range ids {
		rows.AddRow(id, "abc123", "o1", "initiator", "candidate:1 1 udp 1 10.0.0.1 5000 typ host", nil, nil, nil, time.Now())
	}

	return rows
}

func TestRendezvousRepo_CreateRoom(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(insertRoomSQL)).
		WithArgs("abc123", testOffer.SDP, "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.CreateRoom(context.Background(), "abc123", testOffer, "alice"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRendezvousRepo_CreateRoomConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	// ON CONFLICT DO NOTHING: комната уже есть, вставлено 0 строк
	mock.ExpectExec(regexp.QuoteMeta(insertRoomSQL)).
		WithArgs("abc123", testOffer.SDP, "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateRoom(context.Background(), "abc123", testOffer, "bob")
	if !errors.Is(err, signaling.ErrRoomConflict) {
		t.Fatalf("CreateRoom err=%v, want ErrRoomConflict", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRendezvousRepo_SetAnswer(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(setAnswerSQL)).
		WithArgs("abc123", testAnswer.SDP, "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetAnswer(context.Background(), "abc123", testAnswer, "bob"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRendezvousRepo_SetAnswerAlreadySet(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(setAnswerSQL)).
		WithArgs("abc123", testAnswer.SDP, "carol").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectRoomSQL)).
		WithArgs("abc123").
		WillReturnRows(roomRows().AddRow("abc123", testOffer.SDP, testAnswer.SDP, "alice", "bob", time.Now()))

	err := repo.SetAnswer(context.Background(), "abc123", testAnswer, "carol")
	if !errors.Is(err, signaling.ErrAnswerAlreadySet) {
		t.Fatalf("SetAnswer err=%v, want ErrAnswerAlreadySet", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRendezvousRepo_SetAnswerNoRoom(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(setAnswerSQL)).
		WithArgs("abc123", testAnswer.SDP, "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectRoomSQL)).
		WithArgs("abc123").
		WillReturnRows(roomRows())

	err := repo.SetAnswer(context.Background(), "abc123", testAnswer, "bob")
	if !errors.Is(err, signaling.ErrRoomNotFound) {
		t.Fatalf("SetAnswer err=%v, want ErrRoomNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRendezvousRepo_WatchCandidatesExactlyOnce(t *testing.T) {
	repo, mock := newMockRepo(t)

	// id 3 закоммичен раньше id 2, повторные строки в следующих опросах отдавать нельзя
	mock.ExpectQuery(regexp.QuoteMeta(candidatesSQL)).WithArgs("abc123").WillReturnRows(candidateRows(1, 3))
	mock.ExpectQuery(regexp.QuoteMeta(candidatesSQL)).WithArgs("abc123").WillReturnRows(candidateRows(1, 2, 3))
	mock.ExpectQuery(regexp.QuoteMeta(candidatesSQL)).WithArgs("abc123").WillReturnRows(candidateRows(1, 2, 3, 4))

	var (
		mu   sync.Mutex
		seqs []int64
	)

	sub, err := repo.WatchCandidates(context.Background(), "abc123", func(rec signaling.CandidateRecord) {
		mu.Lock()
		seqs = append(seqs, rec.Seq)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("WatchCandidates: %v", err)
	}

	delivered := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs)
	}

	deadline := time.Now().Add(2 * time.Second)
	for delivered() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	sub.Cancel()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()

	want := []int64{1, 3, 2, 4}
	if len(seqs) != len(want) {
		t.Fatalf("delivered seqs=%v, want %v", seqs, want)
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("delivered seqs=%v, want %v", seqs, want)
		}
	}
}
