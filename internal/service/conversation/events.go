package conversation

import (
	"sync"
	"time"

	"github.com/zhouzirui/locus/backend/internal/model/chat"
)

// EventType names an engine state change.
type EventType string

const (
	EventUserMessage  EventType = "user_message"
	EventPlaceholder  EventType = "placeholder"
	EventDelta        EventType = "delta"
	EventCompleted    EventType = "completed"
	EventApology      EventType = "apology"
	EventTruncated    EventType = "truncated"
	EventAudio        EventType = "audio"
	EventAudioSkipped EventType = "audio_skipped"
	EventReset        EventType = "reset"
)

// Event is one observable mutation. Content carries the full text of the
// in-flight message after a delta so late subscribers can resync.
type Event struct {
	Type      EventType     `json:"type"`
	Turn      uint64        `json:"turn,omitempty"`
	Message   *chat.Message `json:"message,omitempty"`
	MessageID string        `json:"messageId,omitempty"`
	Delta     string        `json:"delta,omitempty"`
	Content   string        `json:"content,omitempty"`
	Audio     []byte        `json:"audio,omitempty"`
	Format    string        `json:"format,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// subscriber buffers events without bound so the engine never blocks on a
// slow reader and no delta is lost.
type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
	drain  chan struct{}
	once   sync.Once
	ended  sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
		drain:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			case <-s.drain:
				// 再检查一次，push 可能发生在 finish 之前
				s.mu.Lock()
				empty := len(s.queue) == 0
				s.mu.Unlock()
				if empty {
					return
				}
				continue
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}

// close drops queued events and closes out.
func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// finish delivers the queued events, then closes out. A later close still
// aborts delivery.
func (s *subscriber) finish() {
	s.ended.Do(func() { close(s.drain) })
}
