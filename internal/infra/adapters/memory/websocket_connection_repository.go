package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrConnectionNotFound = errors.New("websocket connection not found")

// WebsocketConnectionRepository хранит активные watch-соединения и сериализует запись в них
type WebsocketConnectionRepository interface {
	Add(uuid.UUID, *websocket.Conn)
	Remove(uuid.UUID)

	Write(uuid.UUID, any) error
	Ping(uuid.UUID, time.Duration) error

	Count() int

	// CloseAll отправляет close frame всем соединениям, используется при остановке сервера
	CloseAll()
}

type safeWS struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type wsConnectionRepository struct {
	wsConns map[uuid.UUID]*safeWS

	mu sync.RWMutex
}

func NewWSConnectionRepository() WebsocketConnectionRepository {
	return &wsConnectionRepository{
		wsConns: make(map[uuid.UUID]*safeWS, 10),
	}
}

func (w *wsConnectionRepository) Add(connID uuid.UUID, conn *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.wsConns[connID] = &safeWS{conn: conn}
}

func (w *wsConnectionRepository) Remove(connID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.wsConns, connID)
}

func (w *wsConnectionRepository) Write(connID uuid.UUID, payload any) error {
	safews, ok := w.getSafeWS(connID)
	if !ok {
		return ErrConnectionNotFound
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	return safews.conn.WriteJSON(payload)
}

func (w *wsConnectionRepository) Ping(connID uuid.UUID, timeout time.Duration) error {
	safews, ok := w.getSafeWS(connID)
	if !ok {
		return ErrConnectionNotFound
	}

	safews.mu.Lock()
	defer safews.mu.Unlock()

	return safews.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func (w *wsConnectionRepository) Count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return len(w.wsConns)
}

func (w *wsConnectionRepository) CloseAll() {
	w.mu.RLock()
	conns := make([]*safeWS, 0, len(w.wsConns))
	for _, c := range w.wsConns {
		conns = append(conns, c)
	}
	w.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown")

	for _, c := range conns {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.mu.Unlock()
	}
}

func (w *wsConnectionRepository) getSafeWS(connID uuid.UUID) (*safeWS, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	conn, ok := w.wsConns[connID]
	return conn, ok
}
