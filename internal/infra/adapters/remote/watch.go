package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/domain/events"
	"github.com/qrave1/PairCall/internal/domain/signaling"
)

const (
	defaultReconnectAttempts = 8
	defaultReconnectBase     = 250 * time.Millisecond
	reconnectCap             = 5 * time.Second
)

func (c *Client) dial(ctx context.Context, key, topic string) (*websocket.Conn, error) {
	scheme, err := c.wsScheme()
	if err != nil {
		return nil, err
	}

	target := c.endpoint(scheme, "rooms", key, "watch", topic)

	conn, resp, err := c.dialer.DialContext(ctx, target, c.header())
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("watch %s: %w", topic, decodeError(resp))
			}
		}
		return nil, fmt.Errorf("watch %s: %w", topic, err)
	}

	return conn, nil
}

// watcher держит один watch-стрим и переподключается при обрыве.
// Когда переподключения исчерпаны, done закрывается с ошибкой в err.
type watcher struct {
	client *Client
	key    string
	topic  string
	handle func(events.Message)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
	err  error
}

func (c *Client) watch(ctx context.Context, key, topic string, handle func(events.Message)) (signaling.Subscription, error) {
	conn, err := c.dial(ctx, key, topic)
	if err != nil {
		return nil, err
	}

	w := &watcher{client: c, key: key, topic: topic, handle: handle, conn: conn, done: make(chan struct{})}
	w.ctx, w.cancel = context.WithCancel(ctx)

	context.AfterFunc(w.ctx, w.closeConn)

	go w.run()

	return w, nil
}

func (w *watcher) Cancel() { w.cancel() }

func (w *watcher) Done() <-chan struct{} { return w.done }

func (w *watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.err
}

func (w *watcher) closeConn() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		_ = w.conn.Close()
	}
}

func (w *watcher) swap(conn *websocket.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		_ = conn.Close()
		return false
	}

	w.conn = conn

	return true
}

func (w *watcher) run() {
	defer close(w.done)

	log := slog.With(slog.String(constant.RoomKey, w.key), slog.String("topic", w.topic))

	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()

		err := w.read(conn)
		if w.ctx.Err() != nil {
			return
		}

		log.Warn("watch stream lost, reconnecting", slog.Any(constant.Error, err))

		backoff := retry.WithCappedDuration(
			reconnectCap,
			retry.WithMaxRetries(w.client.reconnectAttempts, retry.NewExponential(w.client.reconnectBase)),
		)

		err = retry.Do(w.ctx, backoff, func(ctx context.Context) error {
			next, err := w.client.dial(ctx, w.key, w.topic)
			if err != nil {
				return retry.RetryableError(err)
			}

			if !w.swap(next) {
				return ctx.Err()
			}

			return nil
		})
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}

			log.Error("watch stream gave up", slog.Any(constant.Error, err))

			w.mu.Lock()
			w.err = fmt.Errorf("watch %s: reconnect: %w", w.topic, err)
			w.mu.Unlock()

			w.cancel()

			return
		}
	}
}

func (w *watcher) read(conn *websocket.Conn) error {
	for {
		var msg events.Message

		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		if msg.Type == events.TypeError {
			ev, _ := events.Decode[events.ErrorEvent](msg, events.TypeError)
			return fmt.Errorf("server: %s", ev.Error)
		}

		w.handle(msg)
	}
}

func (c *Client) WatchRoom(ctx context.Context, key string, onChange func(signaling.Room)) (signaling.Subscription, error) {
	return c.watch(ctx, key, "room", func(msg events.Message) {
		ev, err := events.Decode[events.RoomEvent](msg, events.TypeRoom)
		if err != nil {
			slog.Warn("decode room event", slog.Any(constant.Error, err))
			return
		}

		onChange(ev.Room)
	})
}

// WatchCandidates - после переподключения сервер повторяет историю, уже виденные записи отбрасываются
func (c *Client) WatchCandidates(ctx context.Context, key string, onEach func(signaling.CandidateRecord)) (signaling.Subscription, error) {
	seen := make(map[int64]struct{})

	return c.watch(ctx, key, "candidates", func(msg events.Message) {
		ev, err := events.Decode[events.CandidateEvent](msg, events.TypeCandidate)
		if err != nil {
			slog.Warn("decode candidate event", slog.Any(constant.Error, err))
			return
		}

		if _, dup := seen[ev.Record.Seq]; dup {
			return
		}
		seen[ev.Record.Seq] = struct{}{}

		onEach(ev.Record)
	})
}

func (c *Client) WatchMessages(ctx context.Context, key string, onSnapshot func([]signaling.MessageRecord)) (signaling.Subscription, error) {
	return c.watch(ctx, key, "messages", func(msg events.Message) {
		ev, err := events.Decode[events.MessagesEvent](msg, events.TypeMessages)
		if err != nil {
			slog.Warn("decode messages event", slog.Any(constant.Error, err))
			return
		}

		signaling.SortMessages(ev.Messages)

		onSnapshot(ev.Messages)
	})
}
