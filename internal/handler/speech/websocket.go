package speech

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	chatservice "github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
	speechsvc "github.com/zhouzirui/locus/backend/internal/service/speech"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler WebSocket语音处理器
type WebSocketHandler struct {
	speechSvc SpeechService
	chatSvc   *chatservice.Service
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(speechSvc SpeechService, chatSvc *chatservice.Service) *WebSocketHandler {
	return &WebSocketHandler{
		speechSvc: speechSvc,
		chatSvc:   chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// StartMessage 开始录音
type StartMessage struct {
	Format string `json:"format"` // pcm (16kHz mono s16le), wav, webm, m4a
}

// AudioMessage 音频分片，audioData 为 base64
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
}

// TextMessage 文本输入
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex
}

func (c *wsConn) send(msgType string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := outgoingMessage{Type: msgType, SessionID: c.sessionID, Data: data, Timestamp: time.Now().Unix()}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msgType, err)
	}
}

func (c *wsConn) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

type connectionState struct {
	engine   *conversation.Engine
	listener *speechsvc.Listener
	recorder *speechsvc.BufferRecorder
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	engine, err := h.chatSvc.Engine(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := &wsConn{conn: conn, sessionID: sessionID}

	recorder := speechsvc.NewBufferRecorder("pcm")
	listener := speechsvc.NewListener(recorder, h.speechSvc, func() string {
		return locale.LanguageOf(engine.Settings().Snapshot().TargetLanguage)
	})
	state := &connectionState{engine: engine, listener: listener, recorder: recorder}

	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	// 订阅之后再发快照，之间的事件留在队列里，随后按序转发
	sess, _ := h.chatSvc.GetSession(ctx, sessionID)
	out.send("connected", map[string]any{
		"scene":     sess.SceneID,
		"config":    sess.Config,
		"messages":  engine.Messages(),
		"streaming": engine.Streaming(),
		"stt":       h.speechSvc.STTEnabled(),
		"tts":       h.speechSvc.TTSEnabled(),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.forwardEvents(ctx, out, events)
	}()
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, out)
	}()
	defer wg.Wait()
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			out.sendError("session mismatch")
			continue
		}

		h.handleMessage(ctx, out, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, out *wsConn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "start":
		h.handleStart(ctx, out, state, msg.Data)
	case "audio":
		h.handleAudio(out, state, msg.Data)
	case "stop":
		h.handleStop(ctx, out, state)
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			out.sendError("invalid text payload")
			return
		}
		h.submit(ctx, out, state.engine, text.Text)
	case "reset":
		state.engine.ResetChat()
	case "config":
		h.handleConfig(ctx, out, msg.Data)
	default:
		out.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *WebSocketHandler) handleStart(ctx context.Context, out *wsConn, state *connectionState, raw json.RawMessage) {
	var start StartMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &start); err != nil {
			out.sendError("invalid start payload")
			return
		}
	}
	if !state.listener.Listening() && start.Format != "" {
		state.recorder.SetFormat(start.Format)
	}

	if err := state.listener.StartListening(ctx); err != nil {
		out.sendError(err.Error())
		return
	}
	out.send("listening", map[string]bool{"active": true})
}

func (h *WebSocketHandler) handleAudio(out *wsConn, state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		out.sendError("invalid audio payload")
		return
	}
	if _, err := state.recorder.Write(audio.AudioData); err != nil {
		out.sendError(err.Error())
	}
}

// handleStop 结束录音并转写，识别结果作为用户输入提交
func (h *WebSocketHandler) handleStop(ctx context.Context, out *wsConn, state *connectionState) {
	text, err := state.listener.StopListening(ctx)
	out.send("listening", map[string]bool{"active": false})

	switch {
	case errors.Is(err, speechsvc.ErrNotListening):
		out.sendError(err.Error())
		return
	case errors.Is(err, speechsvc.ErrEmptyRecording):
		out.send("transcript", map[string]any{"text": "", "isFinal": true})
		return
	case err != nil:
		log.Printf("[websocket] transcription failed session=%s: %v", out.sessionID, err)
		out.sendError("speech recognition failed")
		return
	}

	out.send("transcript", map[string]any{"text": text, "isFinal": true})
	if text != "" {
		h.submit(ctx, out, state.engine, text)
	}
}

func (h *WebSocketHandler) submit(ctx context.Context, out *wsConn, engine *conversation.Engine, text string) {
	_, err := engine.SendMessage(ctx, text)
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrEmptyInput):
		out.send("ignored", map[string]string{"reason": "empty"})
	case errors.Is(err, conversation.ErrDuplicateInput):
		out.send("ignored", map[string]string{"reason": "duplicate"})
	default:
		out.sendError(err.Error())
	}
}

func (h *WebSocketHandler) handleConfig(ctx context.Context, out *wsConn, raw json.RawMessage) {
	var patch session.Config
	if err := json.Unmarshal(raw, &patch); err != nil {
		out.sendError("invalid config payload")
		return
	}

	sess, err := h.chatSvc.UpdateConfig(ctx, out.sessionID, patch)
	if err != nil {
		out.sendError(err.Error())
		return
	}

	log.Printf("[websocket] config applied session=%s target=%s level=%s", out.sessionID, sess.Config.TargetLanguage, sess.Config.Level)
	out.send("config", sess.Config)
}

// forwardEvents 把引擎事件原样转发给客户端
func (h *WebSocketHandler) forwardEvents(ctx context.Context, out *wsConn, events <-chan conversation.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			out.send(string(ev.Type), ev)
		}
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, out *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}
