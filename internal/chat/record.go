package chat

import "github.com/AtharvSharma0077/ChatbotAI/internal/models"

// Record is one frame of an exchange response stream, serialized as a single
// NDJSON line. An exchange produces exactly one record today; the framing
// leaves room for token-level streaming later without a wire change.
type Record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func MessageRecord(msg *models.Message) Record {
	return Record{Type: "message", Data: msg}
}

func ErrorRecord(err error) Record {
	return Record{Type: "error", Data: err.Error()}
}
