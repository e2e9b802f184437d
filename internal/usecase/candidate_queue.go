package usecase

import (
	"errors"
	"sync"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

type candidateTarget interface {
	HasRemoteDescription() bool
	AddICECandidate(candidate signaling.Candidate) error
}

// CandidateQueue придерживает удалённых кандидатов, пока у транспорта нет remote description.
// После первого Flush буферизация отключается навсегда.
type CandidateQueue struct {
	mu      sync.Mutex
	target  candidateTarget
	pending []signaling.Candidate
	flushed bool
}

func NewCandidateQueue(target candidateTarget) *CandidateQueue {
	return &CandidateQueue{target: target}
}

// EnqueueOrApply применяет кандидата сразу, если remote description уже установлен, иначе буферизует.
func (q *CandidateQueue) EnqueueOrApply(candidate signaling.Candidate) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.flushed {
		if !q.target.HasRemoteDescription() {
			q.pending = append(q.pending, candidate)
			return nil
		}

		// remote description появился, а Flush ещё не звали: сначала старые, потом новый
		if err := q.flushLocked(); err != nil {
			return errors.Join(err, q.target.AddICECandidate(candidate))
		}
	}

	return q.target.AddICECandidate(candidate)
}

// Flush применяет буфер в порядке поступления. Повторные вызовы ничего не делают.
// Ошибка одного кандидата не мешает применить остальные.
func (q *CandidateQueue) Flush() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.flushed {
		return nil
	}

	return q.flushLocked()
}

func (q *CandidateQueue) flushLocked() error {
	q.flushed = true

	pending := q.pending
	q.pending = nil

	var errs []error

	for _, c := range pending {
		if err := q.target.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *CandidateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

func (q *CandidateQueue) Flushed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.flushed
}
