package usecase

import (
	"sync"

	"github.com/qrave1/PairCall/internal/domain/signaling"
)

// candidateOutbox копит локальных кандидатов, пока локальное описание не зафиксировано в комнате.
// После open отдаёт их публикатору в порядке появления.
type candidateOutbox struct {
	mu      sync.Mutex
	pending []signaling.Candidate
	role    signaling.Role
	open    bool
	wake    chan struct{}
}

func newCandidateOutbox() *candidateOutbox {
	return &candidateOutbox{wake: make(chan struct{}, 1)}
}

func (o *candidateOutbox) push(c signaling.Candidate) {
	o.mu.Lock()
	o.pending = append(o.pending, c)
	open := o.open
	o.mu.Unlock()

	if open {
		o.signal()
	}
}

func (o *candidateOutbox) openFor(role signaling.Role) {
	o.mu.Lock()
	o.role = role
	o.open = true
	o.mu.Unlock()

	o.signal()
}

// reset выбрасывает кандидатов брошенного транспорта
func (o *candidateOutbox) reset() {
	o.mu.Lock()
	o.pending = nil
	o.open = false
	o.mu.Unlock()
}

func (o *candidateOutbox) take() ([]signaling.Candidate, signaling.Role) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.open || len(o.pending) == 0 {
		return nil, ""
	}

	batch := o.pending
	o.pending = nil

	return batch, o.role
}

func (o *candidateOutbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
