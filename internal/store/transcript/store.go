// Package transcript persists saved conversations (chat logs).
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/locus/backend/internal/model/chat"
)

var (
	ErrNotFound = errors.New("chat log not found")
	// ErrPersist wraps write failures. The mutation is still applied in memory.
	ErrPersist = errors.New("persist chat logs")
)

// Store keeps chat logs in insertion order.
type Store interface {
	Add(ctx context.Context, log chat.ChatLog) (chat.ChatLog, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]chat.ChatLog, error)
	Get(ctx context.Context, id string) (chat.ChatLog, error)
	Close() error
}

// prepare fills the identity fields a stored log must carry.
func prepare(log chat.ChatLog) chat.ChatLog {
	if strings.TrimSpace(log.ID) == "" {
		log.ID = uuid.NewString()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = chat.Now()
	}
	log.Timestamp = wholeSecond(log.Timestamp)

	messages := make([]chat.Message, len(log.Messages))
	for i, msg := range log.Messages {
		msg.Timestamp = wholeSecond(msg.Timestamp)
		messages[i] = msg
	}
	log.Messages = messages
	return log
}

func wholeSecond(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func cloneLog(log chat.ChatLog) chat.ChatLog {
	log.Messages = append([]chat.Message(nil), log.Messages...)
	return log
}

// Open returns the store for backend ("json" or "sqlite") at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "json":
		return OpenJSON(path)
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown transcript backend %q", backend)
	}
}
