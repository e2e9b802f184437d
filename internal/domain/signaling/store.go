package signaling

import "context"

// Subscription - активная подписка на изменения. Cancel идемпотентен.
//
// Done закрывается, когда подписка закончилась: после Cancel или после окончательного обрыва.
// Err после Done отдаёт причину обрыва, после Cancel - nil.
// Подписки, которые сами не обрываются, возвращают из Done nil.
type Subscription interface {
	Cancel()
	Done() <-chan struct{}
	Err() error
}

// SubscriptionFunc адаптирует функцию к Subscription, которая обрывается только отменой
type SubscriptionFunc func()

func (f SubscriptionFunc) Cancel() { f() }

func (SubscriptionFunc) Done() <-chan struct{} { return nil }

func (SubscriptionFunc) Err() error { return nil }

// RoomStore - документы комнат, ключ - pairing key.
type RoomStore interface {
	// ReadRoom возвращает ErrRoomNotFound, если комнаты нет
	ReadRoom(ctx context.Context, key string) (Room, error)

	// CreateRoom атомарно создаёт комнату с offer. ErrRoomConflict, если комната уже есть.
	CreateRoom(ctx context.Context, key string, offer SessionDescription, creatorRef string) error

	// SetAnswer записывает answer, только если его ещё нет.
	SetAnswer(ctx context.Context, key string, answer SessionDescription, joinerRef string) error

	// WatchRoom отдаёт текущее состояние комнаты (если она есть) и каждое следующее изменение.
	WatchRoom(ctx context.Context, key string, onChange func(Room)) (Subscription, error)
}

// CandidateStore - append-only лог ICE кандидатов комнаты.
type CandidateStore interface {
	PublishCandidate(ctx context.Context, key, origin string, role Role, candidate Candidate) error

	// WatchCandidates отдаёт всю историю в порядке публикации, затем новые записи. Каждую запись - один раз.
	WatchCandidates(ctx context.Context, key string, onEach func(CandidateRecord)) (Subscription, error)
}

// MessageStore - лог сообщений чата комнаты.
type MessageStore interface {
	AppendMessage(ctx context.Context, key, text, senderRef string) (MessageRecord, error)

	// WatchMessages отдаёт полный снапшот сообщений, упорядоченный по времени, при каждом изменении.
	WatchMessages(ctx context.Context, key string, onSnapshot func([]MessageRecord)) (Subscription, error)
}

// Store объединяет все три коллекции комнаты
type Store interface {
	RoomStore
	CandidateStore
	MessageStore
}
