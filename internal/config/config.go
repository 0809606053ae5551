package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	speechModel "github.com/zhouzirui/locus/backend/internal/model/speech"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Speech  SpeechConfig
	Store   StoreConfig
	Session SessionConfig
	Metrics MetricsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	sess, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	metrics, err := loadMetricsConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, LLM: llm, Speech: speech, Store: store, Session: sess, Metrics: metrics}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// LLMConfig 描述大模型相关配置。
type LLMConfig struct {
	Provider string

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Ark (Volcengine)
	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkBaseURL   string
	ArkRegion    string

	Model       string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled 表示是否提供了所选 provider 必需的密钥。
func (c LLMConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	switch c.Provider {
	case ProviderArk:
		return c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != "")
	default:
		return c.OpenAIAPIKey != ""
	}
}

func loadLLMConfig() (LLMConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderOpenAI))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return LLMConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return LLMConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}

	timeout, err := parseDurationEnv("LLM_TIMEOUT", 60*time.Second)
	if err != nil {
		return LLMConfig{}, err
	}

	defaultModel := "gpt-4o"
	if provider == ProviderArk {
		defaultModel = ""
	}

	return LLMConfig{
		Provider:      provider,
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		ArkAPIKey:     strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:  strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:  strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkBaseURL:    getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:     getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Model:         getEnvOrDefault("LLM_MODEL", defaultModel),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		Timeout:       timeout,
	}, nil
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	TTSAPIKey       string
	TTSEndpoint     string
	TTSEncoding     string
	TTSPitch        float64
	TTSSpeakingRate float64
	STTAPIKey       string
	STTEndpoint     string
	STTModel        string
	Timeout         int
	TTSEnabled      bool
	STTEnabled      bool
}

// Enabled 表示至少有一条语音链路可用。
func (c SpeechConfig) Enabled() bool {
	return c.TTSEnabled || c.STTEnabled
}

// Model 转换为语音服务使用的配置
func (c SpeechConfig) Model() *speechModel.SpeechConfig {
	return &speechModel.SpeechConfig{
		TTSAPIKey:       c.TTSAPIKey,
		TTSEndpoint:     c.TTSEndpoint,
		TTSEncoding:     c.TTSEncoding,
		TTSPitch:        c.TTSPitch,
		TTSSpeakingRate: c.TTSSpeakingRate,
		STTAPIKey:       c.STTAPIKey,
		STTEndpoint:     c.STTEndpoint,
		STTModel:        c.STTModel,
		Timeout:         c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	pitch, err := parseOptionalFloatEnv("TTS_PITCH")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsPitch := 0.0
	if pitch != nil {
		ttsPitch = *pitch
	}

	rate, err := parseOptionalFloatEnv("TTS_SPEAKING_RATE")
	if err != nil {
		return SpeechConfig{}, err
	}
	speakingRate := 1.0 // 默认1.0倍速
	if rate != nil {
		speakingRate = *rate
	}

	ttsKey := strings.TrimSpace(os.Getenv("GOOGLE_TTS_API_KEY"))

	// 如果没有单独的转写密钥，复用 OpenAI 密钥
	sttKey := strings.TrimSpace(os.Getenv("STT_API_KEY"))
	if sttKey == "" {
		sttKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	return SpeechConfig{
		TTSAPIKey:       ttsKey,
		TTSEndpoint:     getEnvOrDefault("TTS_ENDPOINT", "https://texttospeech.googleapis.com/v1/text:synthesize"),
		TTSEncoding:     strings.ToUpper(getEnvOrDefault("TTS_AUDIO_ENCODING", "MP3")),
		TTSPitch:        ttsPitch,
		TTSSpeakingRate: speakingRate,
		STTAPIKey:       sttKey,
		STTEndpoint:     getEnvOrDefault("STT_ENDPOINT", "https://api.openai.com/v1/audio/transcriptions"),
		STTModel:        getEnvOrDefault("STT_MODEL", "whisper-1"),
		Timeout:         timeoutSeconds,
		TTSEnabled:      ttsKey != "",
		STTEnabled:      sttKey != "",
	}, nil
}

// Transcript store backends.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
)

// StoreConfig 描述聊天记录的持久化方式。
type StoreConfig struct {
	Backend string
	DataDir string
}

// Path 返回当前后端使用的文件路径。
func (c StoreConfig) Path() string {
	if c.Backend == StoreSQLite {
		return filepath.Join(c.DataDir, "chatLogs.db")
	}
	return filepath.Join(c.DataDir, "chatLogs.json")
}

func loadStoreConfig() (StoreConfig, error) {
	backend := strings.ToLower(getEnvOrDefault("TRANSCRIPT_BACKEND", StoreJSON))
	if backend != StoreJSON && backend != StoreSQLite {
		return StoreConfig{}, fmt.Errorf("invalid TRANSCRIPT_BACKEND value %q", backend)
	}

	return StoreConfig{
		Backend: backend,
		DataDir: getEnvOrDefault("LOCUS_DATA_DIR", "./data"),
	}, nil
}

// SessionConfig 描述新会话的默认语言设置。
type SessionConfig struct {
	Defaults    session.Config
	TurnTimeout time.Duration
	ScenesFile  string
}

func loadSessionConfig() (SessionConfig, error) {
	known := strings.ToLower(getEnvOrDefault("LOCUS_KNOWN_LANGUAGE", "en"))
	if !locale.ValidCode(known) {
		return SessionConfig{}, fmt.Errorf("invalid LOCUS_KNOWN_LANGUAGE value %q", known)
	}

	target := strings.ToLower(getEnvOrDefault("LOCUS_TARGET_LANGUAGE", "fr"))
	if !locale.ValidCode(target) {
		return SessionConfig{}, fmt.Errorf("invalid LOCUS_TARGET_LANGUAGE value %q", target)
	}

	level, err := session.ParseLevel(getEnvOrDefault("LOCUS_LANGUAGE_LEVEL", string(session.Beginner)))
	if err != nil {
		return SessionConfig{}, fmt.Errorf("invalid LOCUS_LANGUAGE_LEVEL: %w", err)
	}

	turnTimeout, err := parseDurationEnv("LOCUS_TURN_TIMEOUT", 60*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		Defaults:    session.Config{KnownLanguage: known, TargetLanguage: target, Level: level},
		TurnTimeout: turnTimeout,
		ScenesFile:  strings.TrimSpace(os.Getenv("LOCUS_SCENES_FILE")),
	}, nil
}

// MetricsConfig 描述 Prometheus 指标暴露配置。
type MetricsConfig struct {
	Enabled bool
	Path    string
}

func loadMetricsConfig() (MetricsConfig, error) {
	enabled, err := parseBoolEnv("METRICS_ENABLED", true)
	if err != nil {
		return MetricsConfig{}, err
	}

	return MetricsConfig{
		Enabled: enabled,
		Path:    getEnvOrDefault("METRICS_PATH", "/metrics"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// 纯数字按秒处理
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
