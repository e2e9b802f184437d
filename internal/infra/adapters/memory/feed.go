package memory

import "sync"

// feed доставляет значения подписчику в отдельной горутине, в порядке push.
// Писатель никогда не блокируется на медленном подписчике.
type feed[T any] struct {
	fn func(T)

	mu      sync.Mutex
	pending []T

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newFeed[T any](fn func(T)) *feed[T] {
	f := &feed[T]{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	go f.run()

	return f
}

func (f *feed[T]) push(v T) {
	f.mu.Lock()
	f.pending = append(f.pending, v)
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *feed[T]) cancel() {
	f.once.Do(func() { close(f.done) })
}

func (f *feed[T]) run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		batch := f.pending
		f.pending = nil
		f.mu.Unlock()

		for _, v := range batch {
			select {
			case <-f.done:
				return
			default:
			}

			f.fn(v)
		}
	}
}
