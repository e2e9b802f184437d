package signaling

import (
	"sort"
	"time"
)

// MessageRecord - сообщение чата. Порядок задаёт хранилище: (Timestamp, ID).
type MessageRecord struct {
	ID        int64     `json:"id" db:"id"`
	RoomKey   string    `json:"room_key" db:"room_key"`
	Text      string    `json:"text" db:"text"`
	SenderRef string    `json:"sender_ref" db:"sender_ref"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}

func (m MessageRecord) Before(other MessageRecord) bool {
	if m.Timestamp.Equal(other.Timestamp) {
		return m.ID < other.ID
	}

	return m.Timestamp.Before(other.Timestamp)
}

// SortMessages упорядочивает снапшот по времени хранилища, а не по порядку доставки.
func SortMessages(msgs []MessageRecord) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Before(msgs[j])
	})
}
