package types

import "time"

// Message is the read-only view of a chat message used by the anomaly
// detector. Message business logic lives outside this service.
type Message struct {
	ID        int64     `json:"id" db:"id"`
	ChannelID int       `json:"channel_id" db:"channel_id"`
	AuthorID  int       `json:"author_id" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	Deleted   bool      `json:"deleted" db:"deleted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
