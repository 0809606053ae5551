package speech

import (
	"io"
)

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // m4a, wav, mp3, webm
	Language  string    `json:"language"` // 两位语言代码, 可为空
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
	Language  string `json:"language"` // 两位语言代码, 如 fr
	Locale    string `json:"locale"`   // 扩展语言标签, 如 fr-FR, 优先于 Language
	Level     string `json:"level,omitempty"`
}
