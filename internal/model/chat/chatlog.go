package chat

import "time"

// ChatLog is a saved conversation. It is immutable once stored.
type ChatLog struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	LanguageCode string    `json:"languageCode"`
	Timestamp    time.Time `json:"timestamp"`
}
