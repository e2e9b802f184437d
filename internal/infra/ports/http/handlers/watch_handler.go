package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/application/metric"
	"github.com/qrave1/PairCall/internal/domain/events"
	"github.com/qrave1/PairCall/internal/domain/pairing"
	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/infra/adapters/memory"
	"github.com/qrave1/PairCall/internal/infra/ports/http/dto"
	"github.com/qrave1/PairCall/internal/usecase"
)

// Темы watch-стримов комнаты
const (
	TopicRoom       = "room"
	TopicCandidates = "candidates"
	TopicMessages   = "messages"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

type WatchHandler struct {
	upgrader *websocket.Upgrader

	rendezvousUsecase usecase.RendezvousUsecase
	wsRepo            memory.WebsocketConnectionRepository
}

func NewWatchHandler(
	cfg *config.Config,
	rendezvousUsecase usecase.RendezvousUsecase,
	wsRepo memory.WebsocketConnectionRepository,
) *WatchHandler {
	return &WatchHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// CLI клиенты Origin не присылают
				if cfg.Debug || origin == "" {
					return true
				}

				return origin == cfg.Domain
			},
		},
		rendezvousUsecase: rendezvousUsecase,
		wsRepo:            wsRepo,
	}
}

// Handle отдаёт изменения комнаты, кандидатов или сообщений по WebSocket, пока клиент не отключится
func (h *WatchHandler) Handle(c echo.Context) error {
	key, topic := c.Param("key"), c.Param("topic")

	if !pairing.Valid(key) {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: dto.CodeInvalidKey})
	}

	switch topic {
	case TopicRoom, TopicCandidates, TopicMessages:
	default:
		return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: dto.CodeUnknownTopic, Message: topic})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return nil
	}
	defer ws.Close()

	connID := uuid.New()

	h.wsRepo.Add(connID, ws)
	defer h.wsRepo.Remove(connID)

	metric.IncrementWSWatchers(topic)
	defer metric.DecrementWSWatchers(topic)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	log := slog.With(slog.String(constant.RoomKey, key), slog.String("topic", topic))

	send := func(typ string, data any) {
		msg, err := events.New(typ, data)
		if err != nil {
			log.Error("build event", slog.Any(constant.Error, err))
			return
		}

		if err := h.wsRepo.Write(connID, msg); err != nil {
			log.Debug("write to watcher", slog.Any(constant.Error, err))
			cancel()
		}
	}

	sub, err := h.subscribe(ctx, topic, key, send)
	if err != nil {
		log.Error("subscribe", slog.Any(constant.Error, err))
		send(events.TypeError, events.ErrorEvent{Error: err.Error()})
		return nil
	}
	defer sub.Cancel()

	if err = ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return nil
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := h.wsRepo.Ping(connID, writeWait); err != nil {
					log.Debug("ping failed", slog.Any(constant.Error, err))
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// клиент ничего не шлёт, читаем только ради pong и close
	go func() {
		defer cancel()

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	<-ctx.Done()

	return nil
}

func (h *WatchHandler) subscribe(
	ctx context.Context,
	topic, key string,
	send func(typ string, data any),
) (signaling.Subscription, error) {
	switch topic {
	case TopicRoom:
		return h.rendezvousUsecase.WatchRoom(ctx, key, func(room signaling.Room) {
			send(events.TypeRoom, events.RoomEvent{Room: room})
		})
	case TopicCandidates:
		return h.rendezvousUsecase.WatchCandidates(ctx, key, func(rec signaling.CandidateRecord) {
			send(events.TypeCandidate, events.CandidateEvent{Record: rec})
		})
	default:
		return h.rendezvousUsecase.WatchMessages(ctx, key, func(msgs []signaling.MessageRecord) {
			send(events.TypeMessages, events.MessagesEvent{Messages: msgs})
		})
	}
}
