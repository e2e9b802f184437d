package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

type roomRow struct {
	Key        string         `db:"key"`
	OfferSDP   string         `db:"offer_sdp"`
	AnswerSDP  sql.NullString `db:"answer_sdp"`
	CreatorRef string         `db:"creator_ref"`
	JoinerRef  sql.NullString `db:"joiner_ref"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r roomRow) toDomain() signaling.Room {
	room := signaling.Room{
		Key:        r.Key,
		Offer:      &signaling.SessionDescription{Type: signaling.SDPTypeOffer, SDP: r.OfferSDP},
		CreatorRef: r.CreatorRef,
		JoinerRef:  r.JoinerRef.String,
		CreatedAt:  r.CreatedAt,
	}

	if r.AnswerSDP.Valid {
		room.Answer = &signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: r.AnswerSDP.String}
	}

	return room
}

type candidateRow struct {
	ID               int64          `db:"id"`
	RoomKey          string         `db:"room_key"`
	Origin           string         `db:"origin"`
	Role             string         `db:"role"`
	Candidate        string         `db:"candidate"`
	SDPMid           sql.NullString `db:"sdp_mid"`
	SDPMLineIndex    sql.NullInt32  `db:"sdp_mline_index"`
	UsernameFragment sql.NullString `db:"username_fragment"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r candidateRow) toDomain() signaling.CandidateRecord {
	rec := signaling.CandidateRecord{
		Seq:       r.ID,
		RoomKey:   r.RoomKey,
		Origin:    r.Origin,
		Role:      signaling.Role(r.Role),
		Candidate: signaling.Candidate{Candidate: r.Candidate},
		CreatedAt: r.CreatedAt,
	}

	if r.SDPMid.Valid {
		mid := r.SDPMid.String
		rec.Candidate.SDPMid = &mid
	}
	if r.SDPMLineIndex.Valid {
		idx := uint16(r.SDPMLineIndex.Int32)
		rec.Candidate.SDPMLineIndex = &idx
	}
	if r.UsernameFragment.Valid {
		ufrag := r.UsernameFragment.String
		rec.Candidate.UsernameFragment = &ufrag
	}

	return rec
}

type rendezvousRepo struct {
	db        *sqlx.DB
	pollEvery time.Duration
}

// NewRendezvousRepo - хранилище рандеву поверх postgres.
// Подписки реализованы опросом раз в pollEvery.
func NewRendezvousRepo(db *sqlx.DB, pollEvery time.Duration) signaling.Store {
	return &rendezvousRepo{db: db, pollEvery: pollEvery}
}

func (r *rendezvousRepo) ReadRoom(ctx context.Context, key string) (signaling.Room, error) {
	var row roomRow

	err := r.db.GetContext(
		ctx,
		&row,
		"SELECT key, offer_sdp, answer_sdp, creator_ref, joiner_ref, created_at FROM rooms WHERE key = $1",
		key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return signaling.Room{}, signaling.ErrRoomNotFound
	}
	if err != nil {
		return signaling.Room{}, fmt.Errorf("select room: %w", err)
	}

	return row.toDomain(), nil
}

func (r *rendezvousRepo) CreateRoom(ctx context.Context, key string, offer signaling.SessionDescription, creatorRef string) error {
	res, err := r.db.ExecContext(
		ctx,
		"INSERT INTO rooms (key, offer_sdp, creator_ref) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING",
		key,
		offer.SDP,
		creatorRef,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return signaling.ErrRoomConflict
	}

	return nil
}

func (r *rendezvousRepo) SetAnswer(ctx context.Context, key string, answer signaling.SessionDescription, joinerRef string) error {
	res, err := r.db.ExecContext(
		ctx,
		"UPDATE rooms SET answer_sdp = $2, joiner_ref = $3, answered_at = now() WHERE key = $1 AND answer_sdp IS NULL",
		key,
		answer.SDP,
		joinerRef,
	)
	if err != nil {
		return fmt.Errorf("update room answer: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 1 {
		return nil
	}

	// ничего не обновили - либо комнаты нет, либо answer уже записан
	if _, err = r.ReadRoom(ctx, key); err != nil {
		return err
	}

	return signaling.ErrAnswerAlreadySet
}

func (r *rendezvousRepo) WatchRoom(ctx context.Context, key string, onChange func(signaling.Room)) (signaling.Subscription, error) {
	last := signaling.PhaseEmpty

	return r.poll(ctx, "room", key, func(ctx context.Context) error {
		room, err := r.ReadRoom(ctx, key)
		if errors.Is(err, signaling.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		// фаза комнаты только растёт, поэтому достаточно сравнить её
		if room.Phase() > last {
			last = room.Phase()
			onChange(room)
		}

		return nil
	}), nil
}

func (r *rendezvousRepo) PublishCandidate(
	ctx context.Context,
	key, origin string,
	role signaling.Role,
	candidate signaling.Candidate,
) error {
	var mLineIndex *int32
	if candidate.SDPMLineIndex != nil {
		idx := int32(*candidate.SDPMLineIndex)
		mLineIndex = &idx
	}

	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO room_candidates (room_key, origin, role, candidate, sdp_mid, sdp_mline_index, username_fragment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key,
		origin,
		string(role),
		candidate.Candidate,
		candidate.SDPMid,
		mLineIndex,
		candidate.UsernameFragment,
	)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}

	return nil
}

func (r *rendezvousRepo) listCandidates(ctx context.Context, key string) ([]candidateRow, error) {
	var rows []candidateRow

	err := r.db.SelectContext(
		ctx,
		&rows,
		`SELECT id, room_key, origin, role, candidate, sdp_mid, sdp_mline_index, username_fragment, created_at
		FROM room_candidates
		WHERE room_key = $1
		ORDER BY id`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	return rows, nil
}

func (r *rendezvousRepo) WatchCandidates(ctx context.Context, key string, onEach func(signaling.CandidateRecord)) (signaling.Subscription, error) {
	// id из bigserial может закоммититься не по порядку, поэтому курсор - множество, а не последний id
	seen := make(map[int64]struct{})

	return r.poll(ctx, "candidates", key, func(ctx context.Context) error {
		rows, err := r.listCandidates(ctx, key)
		if err != nil {
			return err
		}

		for _, row := range rows {
			if _, ok := seen[row.ID]; ok {
				continue
			}

			seen[row.ID] = struct{}{}
			onEach(row.toDomain())
		}

		return nil
	}), nil
}

func (r *rendezvousRepo) AppendMessage(ctx context.Context, key, text, senderRef string) (signaling.MessageRecord, error) {
	var msg signaling.MessageRecord

	err := r.db.GetContext(
		ctx,
		&msg,
		`INSERT INTO room_messages (room_key, text, sender_ref) VALUES ($1, $2, $3)
		RETURNING id, room_key, text, sender_ref, created_at`,
		key,
		text,
		senderRef,
	)
	if err != nil {
		return signaling.MessageRecord{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

func (r *rendezvousRepo) listMessages(ctx context.Context, key string) ([]signaling.MessageRecord, error) {
	var msgs []signaling.MessageRecord

	err := r.db.SelectContext(
		ctx,
		&msgs,
		`SELECT id, room_key, text, sender_ref, created_at
		FROM room_messages
		WHERE room_key = $1
		ORDER BY created_at, id`,
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	return msgs, nil
}

func (r *rendezvousRepo) WatchMessages(ctx context.Context, key string, onSnapshot func([]signaling.MessageRecord)) (signaling.Subscription, error) {
	delivered := 0

	return r.poll(ctx, "messages", key, func(ctx context.Context) error {
		msgs, err := r.listMessages(ctx, key)
		if err != nil {
			return err
		}

		// лог только дописывается: новое сообщение = выросло количество
		if len(msgs) > delivered {
			delivered = len(msgs)
			onSnapshot(msgs)
		}

		return nil
	}), nil
}
