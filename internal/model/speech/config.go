package speech

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	// TTS (Google Cloud Text-to-Speech)
	TTSAPIKey       string  `json:"ttsApiKey"`
	TTSEndpoint     string  `json:"ttsEndpoint"`
	TTSEncoding     string  `json:"ttsEncoding"` // MP3, LINEAR16, OGG_OPUS
	TTSPitch        float64 `json:"ttsPitch"`
	TTSSpeakingRate float64 `json:"ttsSpeakingRate"`

	// STT (Whisper transcription)
	STTAPIKey   string `json:"sttApiKey"`
	STTEndpoint string `json:"sttEndpoint"`
	STTModel    string `json:"sttModel"`

	// 通用配置
	Timeout int `json:"timeout"` // seconds
}
