// Package conversation runs one practice dialogue: it appends user input,
// streams the persona's reply into a placeholder message and hands finished
// replies to speech synthesis.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/chat"
	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/model/speech"
	"github.com/zhouzirui/locus/backend/internal/observe"
)

const (
	// ApologyText replaces a reply that produced no content at all.
	ApologyText = "Sorry, I couldn't generate a response. Please try again."
	// CutOffSuffix marks a reply whose stream ended abnormally.
	CutOffSuffix = " (Message was cut off)"

	defaultTurnTimeout = 60 * time.Second
)

var (
	ErrEmptyInput     = errors.New("input is empty")
	ErrDuplicateInput = errors.New("input repeats the last user message")
	ErrTurnInProgress = errors.New("a reply is still streaming")
	ErrClosed         = errors.New("conversation closed")
)

// Replier produces the persona prompt and streams replies from the model.
type Replier interface {
	SystemPrompt(sc scene.Scene, cfg session.Config) string
	StreamReply(ctx context.Context, system string, history []chat.Message) (*schema.StreamReader[*schema.Message], error)
}

// Synthesizer turns reply text into audio.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Player outputs synthesized audio. Play must return promptly once ctx is
// cancelled or Stop is called.
type Player interface {
	Play(ctx context.Context, audio []byte, format string) error
	Stop()
}

// Options configures an Engine. Synthesizer, Player and Metrics are optional.
type Options struct {
	Scene       scene.Scene
	Settings    *session.Settings
	Replier     Replier
	Synthesizer Synthesizer
	Player      Player
	Metrics     *observe.Metrics
	TurnTimeout time.Duration
}

// Turn identifies a reply started by SendMessage.
type Turn struct {
	Token         uint64       `json:"turn"`
	PlaceholderID string       `json:"placeholderId"`
	UserMessage   chat.Message `json:"userMessage"`

	done chan struct{}
}

// Wait blocks until the turn has finished streaming and speaking.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Engine owns the message list of one conversation. Every mutation happens
// under mu and is published to subscribers before mu is released.
type Engine struct {
	scene       scene.Scene
	settings    *session.Settings
	replier     Replier
	synthesizer Synthesizer
	player      Player
	metrics     *observe.Metrics
	turnTimeout time.Duration

	mu            sync.Mutex
	messages      []chat.Message
	accumulator   string
	turn          uint64
	streaming     bool
	placeholderID string
	cancel        context.CancelFunc
	subs          map[int]*subscriber
	nextSub       int
	closed        bool
}

// NewEngine validates opts and returns an idle engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Replier == nil {
		return nil, fmt.Errorf("replier is required")
	}
	settings := opts.Settings
	if settings == nil {
		settings = session.NewSettings(session.Default())
	}
	timeout := opts.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}

	return &Engine{
		scene:       opts.Scene,
		settings:    settings,
		replier:     opts.Replier,
		synthesizer: opts.Synthesizer,
		player:      opts.Player,
		metrics:     opts.Metrics,
		turnTimeout: timeout,
		subs:        make(map[int]*subscriber),
	}, nil
}

// Scene returns the scene the engine was created for.
func (e *Engine) Scene() scene.Scene {
	return e.scene
}

// Settings returns the live settings the engine snapshots at every turn.
func (e *Engine) Settings() *session.Settings {
	return e.settings
}

// SendMessage appends text as a user message and starts streaming the reply.
// Empty input and a repeat of the latest user message are rejected without
// touching state; the in-flight placeholder does not count as the latest message.
func (e *Engine) SendMessage(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if last, ok := e.lastSettledLocked(); ok && last.IsUser && last.Content == text {
		e.mu.Unlock()
		return nil, ErrDuplicateInput
	}
	if e.streaming {
		e.mu.Unlock()
		return nil, ErrTurnInProgress
	}

	now := chat.Now()
	userMsg := chat.Message{ID: uuid.NewString(), Content: text, IsUser: true, Timestamp: now}
	e.messages = append(e.messages, userMsg)

	e.turn++
	token := e.turn
	e.publishLocked(Event{Type: EventUserMessage, Turn: token, Message: cloneMessage(userMsg)})

	history := make([]chat.Message, len(e.messages))
	copy(history, e.messages)

	placeholder := chat.Message{ID: uuid.NewString(), IsUser: false, Timestamp: now}
	e.messages = append(e.messages, placeholder)
	e.accumulator = ""
	e.streaming = true
	e.placeholderID = placeholder.ID
	e.publishLocked(Event{Type: EventPlaceholder, Turn: token, Message: cloneMessage(placeholder), MessageID: placeholder.ID})

	lifeCtx, lifeCancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = lifeCancel
	e.mu.Unlock()

	cfg := e.settings.Snapshot()
	system := e.replier.SystemPrompt(e.scene, cfg)

	turn := &Turn{Token: token, PlaceholderID: placeholder.ID, UserMessage: userMsg, done: make(chan struct{})}
	go e.streamReply(lifeCtx, lifeCancel, turn, system, history, cfg)

	return turn, nil
}

// streamReply consumes the model stream for one turn. Every state change is
// applied only while the turn token is still current.
func (e *Engine) streamReply(ctx context.Context, cancel context.CancelFunc, turn *Turn, system string, history []chat.Message, cfg session.Config) {
	defer close(turn.done)
	defer cancel()

	start := time.Now()
	modelCtx, modelCancel := context.WithTimeout(ctx, e.turnTimeout)
	abnormal := e.consume(modelCtx, turn, system, history)
	modelCancel()

	final, outcome, current := e.finishTurn(turn.Token, turn.PlaceholderID, abnormal)
	e.metrics.RecordTurn(ctx, outcome, time.Since(start))
	if !current || outcome != observe.OutcomeCompleted {
		return
	}

	e.speak(ctx, turn, final, cfg)
}

// consume applies deltas and reports whether the stream ended abnormally.
func (e *Engine) consume(ctx context.Context, turn *Turn, system string, history []chat.Message) bool {
	stream, err := e.replier.StreamReply(ctx, system, history)
	if err != nil {
		log.Printf("[engine] turn=%d start stream failed: %v", turn.Token, err)
		e.recordModelError(ctx, err)
		return true
	}
	defer stream.Close()

	abnormal := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return abnormal
		}
		if err != nil {
			log.Printf("[engine] turn=%d stream error: %v", turn.Token, err)
			e.recordModelError(ctx, err)
			return true
		}
		if chunk == nil {
			continue
		}
		if chunk.ResponseMeta != nil {
			switch chunk.ResponseMeta.FinishReason {
			case "length", "content_filter":
				abnormal = true
			}
		}
		if chunk.Content == "" {
			continue
		}
		if !e.applyDelta(turn.Token, turn.PlaceholderID, chunk.Content) {
			return true
		}
	}
}

// recordModelError counts a model failure. Cancellation by ResetChat is not
// a provider error.
func (e *Engine) recordModelError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	e.metrics.RecordProviderError(context.WithoutCancel(ctx), observe.ProviderLLM)
}

func (e *Engine) applyDelta(token uint64, id, delta string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if token != e.turn {
		return false
	}

	e.accumulator += delta
	if idx := e.indexLocked(id); idx >= 0 {
		e.messages[idx].Content = e.accumulator
	}
	e.publishLocked(Event{Type: EventDelta, Turn: token, MessageID: id, Delta: delta, Content: e.accumulator})
	return true
}

// finishTurn resolves the placeholder into its final form. It returns the final
// text, the outcome and whether the turn was still current.
func (e *Engine) finishTurn(token uint64, id string, abnormal bool) (string, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if token != e.turn {
		return "", observe.OutcomeCancelled, false
	}

	e.streaming = false
	e.placeholderID = ""
	idx := e.indexLocked(id)

	if e.accumulator == "" {
		if idx >= 0 {
			e.messages = append(e.messages[:idx], e.messages[idx+1:]...)
		}
		apology := chat.Message{ID: uuid.NewString(), Content: ApologyText, IsUser: false, Timestamp: chat.Now()}
		e.messages = append(e.messages, apology)
		e.publishLocked(Event{Type: EventApology, Turn: token, MessageID: id, Message: cloneMessage(apology)})
		log.Printf("[engine] turn=%d produced no content, apology appended", token)
		return "", observe.OutcomeApology, true
	}

	if abnormal {
		content := e.accumulator + CutOffSuffix
		var msg *chat.Message
		if idx >= 0 {
			e.messages[idx].Content = content
			msg = cloneMessage(e.messages[idx])
		}
		e.publishLocked(Event{Type: EventTruncated, Turn: token, MessageID: id, Content: content, Message: msg})
		return content, observe.OutcomeTruncated, true
	}

	var msg *chat.Message
	if idx >= 0 {
		msg = cloneMessage(e.messages[idx])
	}
	e.publishLocked(Event{Type: EventCompleted, Turn: token, MessageID: id, Content: e.accumulator, Message: msg})
	return e.accumulator, observe.OutcomeCompleted, true
}

// speak synthesizes the final reply and hands it to the player. Failures are
// logged and published as audio_skipped; the text reply stands on its own.
func (e *Engine) speak(ctx context.Context, turn *Turn, text string, cfg session.Config) {
	if e.synthesizer == nil {
		return
	}

	resp, err := e.synthesizer.SynthesizeSpeech(ctx, &speech.TTSRequest{
		Text:     text,
		Language: locale.LanguageOf(cfg.TargetLanguage),
		Locale:   targetLocale(cfg.TargetLanguage),
		Level:    string(cfg.Level),
	})

	e.mu.Lock()
	if turn.Token != e.turn {
		e.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("[engine] turn=%d speech skipped: %v", turn.Token, err)
		e.publishLocked(Event{Type: EventAudioSkipped, Turn: turn.Token, MessageID: turn.PlaceholderID, Error: err.Error()})
		e.mu.Unlock()
		return
	}
	e.publishLocked(Event{Type: EventAudio, Turn: turn.Token, MessageID: turn.PlaceholderID, Audio: resp.AudioData, Format: resp.Format})
	player := e.player
	e.mu.Unlock()

	if player == nil {
		return
	}
	if err := player.Play(ctx, resp.AudioData, resp.Format); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[engine] turn=%d playback failed: %v", turn.Token, err)
	}
}

// ResetChat clears the conversation, stops playback and invalidates the
// in-flight turn so its remaining callbacks become no-ops.
func (e *Engine) ResetChat() {
	e.mu.Lock()
	e.turn++
	e.messages = nil
	e.accumulator = ""
	e.streaming = false
	e.placeholderID = ""
	cancel := e.cancel
	e.cancel = nil
	e.publishLocked(Event{Type: EventReset, Turn: e.turn})
	player := e.player
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if player != nil {
		player.Stop()
	}
}

// Messages returns a snapshot of the conversation.
func (e *Engine) Messages() []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]chat.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// Streaming reports whether a reply is in flight.
func (e *Engine) Streaming() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.streaming
}

// Snapshot builds a saveable log of the current conversation. An empty title
// becomes "<Language> – Jan 2, 3:04 PM".
func (e *Engine) Snapshot(title string) chat.ChatLog {
	cfg := e.settings.Snapshot()
	now := time.Now()

	title = strings.TrimSpace(title)
	if title == "" {
		name := locale.LanguageName(locale.LanguageOf(cfg.TargetLanguage))
		if name == "" {
			name = cfg.TargetLanguage
		}
		title = fmt.Sprintf("%s – %s", name, now.Format("Jan 2, 3:04 PM"))
	}

	return chat.ChatLog{
		Title:        title,
		Messages:     e.Messages(),
		LanguageCode: cfg.TargetLanguage,
		Timestamp:    now.UTC().Truncate(time.Second),
	}
}

// Subscribe returns an ordered stream of events and a function that ends the
// subscription. The channel is closed after cancel, or after Close once the
// queued events have been delivered.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	sub := newSubscriber()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		sub.close()
		return sub.out, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = sub
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
		sub.close()
	}
	return sub.out, cancel
}

// Close resets the engine and ends every subscription.
func (e *Engine) Close() {
	e.ResetChat()

	e.mu.Lock()
	e.closed = true
	subs := e.subs
	e.subs = make(map[int]*subscriber)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.finish()
	}
}

func (e *Engine) publishLocked(ev Event) {
	ev.Timestamp = time.Now().UTC()
	for _, sub := range e.subs {
		sub.push(ev)
	}
}

// lastSettledLocked returns the last message, skipping the in-flight placeholder.
func (e *Engine) lastSettledLocked() (chat.Message, bool) {
	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.streaming && e.messages[i].ID == e.placeholderID {
			continue
		}
		return e.messages[i], true
	}
	return chat.Message{}, false
}

func (e *Engine) indexLocked(id string) int {
	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneMessage(m chat.Message) *chat.Message {
	return &m
}

func targetLocale(code string) string {
	if strings.Contains(code, "-") {
		return code
	}
	return locale.ResolveLocale(code)
}
