package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/locus/backend/internal/config"
	"github.com/zhouzirui/locus/backend/internal/locale"
	speechmodel "github.com/zhouzirui/locus/backend/internal/model/speech"
	"github.com/zhouzirui/locus/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: stt 或 tts")
	audioPath := flag.String("audio", "", "STT 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据格式自动生成)")
	format := flag.String("format", "", "STT 输入格式，默认取文件扩展名")
	language := flag.String("lang", "", "语言代码，默认使用 LOCUS_TARGET_LANGUAGE")
	localeTag := flag.String("locale", "", "TTS 语言区域，如 fr-CA，优先于 -lang")
	level := flag.String("level", "", "语言水平 beginner|intermediate|advanced，影响语速")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	sessionID := fmt.Sprintf("manual-%d", time.Now().UnixNano())
	if *language == "" {
		*language = cfg.Session.Defaults.TargetLanguage
	}

	svc := speech.NewService(cfg.Speech.Model(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "stt", "asr":
		if !cfg.Speech.STTEnabled {
			log.Fatal("转写未启用，请配置 STT_API_KEY 或 OPENAI_API_KEY")
		}
		runSTT(ctx, svc, sessionID, *audioPath, *format, *language)
	case "tts":
		if !cfg.Speech.TTSEnabled {
			log.Fatal("语音合成未启用，请配置 GOOGLE_TTS_API_KEY")
		}
		runTTS(ctx, svc, sessionID, *text, *language, *localeTag, *level, *outputPath)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=stt 或 -mode=tts 指定测试模式")
	}
}

func runSTT(ctx context.Context, svc *speech.Service, sessionID, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal("STT 模式需要通过 -audio 指定音频文件路径")
	}

	file, err := os.Open(audioPath)
	if err != nil {
		log.Fatalf("打开音频文件失败: %v", err)
	}
	defer file.Close()

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
	}

	log.Printf("开始进行 STT 测试: session=%s format=%s language=%s", sessionID, format, language)

	resp, err := svc.TranscribeAudio(ctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: file,
		Format:    format,
		Language:  locale.LanguageOf(language),
	})
	if err != nil {
		log.Fatalf("STT 调用失败: %v", err)
	}

	log.Printf("STT 识别成功: text=%q duration=%dms", resp.Text, resp.Duration)
}

func runTTS(ctx context.Context, svc *speech.Service, sessionID, text, language, localeTag, level, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	resp, err := svc.SynthesizeSpeech(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Language:  language,
		Locale:    localeTag,
		Level:     level,
	})
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), resp.Format)
	}
	if err := os.WriteFile(outputPath, resp.AudioData, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: locale=%s voice=%s bytes=%d duration=%dms file=%s",
		resp.Locale, resp.Voice, len(resp.AudioData), resp.Duration, outputPath)
}
