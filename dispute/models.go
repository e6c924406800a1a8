package dispute

import "time"

// Sentinel sender ids for entries written by the service itself.
const (
	SenderSystem   = "system"
	SenderMediator = "ai-mediator"
)

const MaxTextLength = 4000

// Message mirrors the dispute_messages table. The log is append-only and ordered by
// creation time, ties broken by insertion sequence.
type Message struct {
	ID            int64
	OrderID       string
	SenderID      string
	Text          string
	AttachmentRef *string
	CreatedAt     time.Time
}

// AppendRequest is a participant-authored chat entry.
type AppendRequest struct {
	OrderID       string
	SenderID      string
	Text          string
	AttachmentRef string
}
