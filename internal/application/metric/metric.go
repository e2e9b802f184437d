package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Общее количество HTTP запросов",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Время обработки HTTP запросов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// Сигналинг - операции над комнатами (create, conflict, answer, answer_conflict)
	roomOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rendezvous_room_operations_total",
			Help: "Операции над комнатами рандеву",
		},
		[]string{"operation"},
	)

	candidatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rendezvous_candidates_total",
			Help: "Количество опубликованных ICE кандидатов",
		},
	)

	messagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rendezvous_messages_total",
			Help: "Количество сообщений чата",
		},
	)

	// WS метрики - активные подписки на изменения
	wsActiveWatchers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ws_active_watchers",
			Help: "Количество активных WebSocket подписок",
		},
		[]string{"topic"},
	)
)

const (
	RoomCreated        = "create"
	RoomConflict       = "conflict"
	RoomAnswered       = "answer"
	RoomAnswerConflict = "answer_conflict"
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func RecordRoomOperation(operation string) {
	roomOperationsTotal.WithLabelValues(operation).Inc()
}

func IncrementCandidates() {
	candidatesTotal.Inc()
}

func IncrementMessages() {
	messagesTotal.Inc()
}

func IncrementWSWatchers(topic string) {
	wsActiveWatchers.WithLabelValues(topic).Inc()
}

func DecrementWSWatchers(topic string) {
	wsActiveWatchers.WithLabelValues(topic).Dec()
}
