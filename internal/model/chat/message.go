package chat

import "time"

// Chat-completion roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one utterance in a live conversation. Content only changes while
// the message is the in-flight reply of the current turn.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// Role maps the message author onto the chat-completion role names.
func (m Message) Role() string {
	if m.IsUser {
		return RoleUser
	}
	return RoleAssistant
}

// Now returns the current UTC time at whole-second precision. Saved logs are
// read by ISO 8601 decoders that reject fractional seconds.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
