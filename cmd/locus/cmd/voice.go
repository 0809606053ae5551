//go:build voice

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/locus/backend/internal/audio"
	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/service/speech"
)

var voiceHandsFree bool

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Spoken conversation through microphone and speakers",
	Long: `用麦克风和扬声器对话。

免手动模式下检测到停顿即发送；否则按回车结束一句话。
回复以 LINEAR16 合成后在本机播放。`,
	RunE: runVoice,
}

func init() {
	rootCmd.AddCommand(voiceCmd)
	voiceCmd.Flags().BoolVar(&voiceHandsFree, "hands-free", true, "end an utterance on silence")
	voiceCmd.Flags().BoolVar(&chatSaveOnExit, "save-on-exit", false, "save the conversation when leaving")
}

func runVoice(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, profile, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}
	// 播放器只解码 WAV
	cfg.Speech.TTSEncoding = "LINEAR16"

	terminate, err := audio.Init()
	if err != nil {
		printError("audio", err)
		return err
	}
	defer terminate()

	rt, err := newRuntime(ctx, cfg, profile, audio.NewPlayer())
	if err != nil {
		printError("start conversation", err)
		return err
	}
	defer rt.Close(context.Background())

	if rt.speech == nil || !rt.speech.STTEnabled() {
		err := errors.New("speech-to-text is not configured: set STT_API_KEY or OPENAI_API_KEY")
		printError("voice", err)
		return err
	}

	recorder := audio.NewRecorder()
	ended := make(chan struct{}, 1)
	if voiceHandsFree {
		ep, err := audio.NewEndpointer(endpointConfig(profile.Voice))
		if err != nil {
			printError("vad", err)
			return err
		}
		recorder.SetEndpointer(ep, func() {
			select {
			case ended <- struct{}{}:
			default:
			}
		})
	}

	listener := speech.NewListener(recorder, rt.speech, func() string {
		return locale.LanguageOf(rt.engine.Settings().Snapshot().TargetLanguage)
	})

	out := cmd.OutOrStdout()
	events, cancel := rt.engine.Subscribe()
	defer cancel()
	p := newPrinter(out, rt.engine.Scene().PersonaName)
	go p.run(events)

	enter := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			enter <- struct{}{}
		}
		close(enter)
	}()

	sc := rt.engine.Scene()
	fmt.Fprintf(out, "%s · %s (%s). Ctrl+C to leave.\n", sc.Title, sc.PersonaName, languageLabel(rt.session.Config.TargetLanguage))

	for {
		select {
		case <-ended:
		default:
		}
		if err := listener.StartListening(ctx); err != nil {
			printError("microphone", err)
			return err
		}
		fmt.Fprintln(out, "(listening...)")

		open := true
		select {
		case <-ctx.Done():
		case <-ended:
		case _, open = <-enter:
		}

		text, err := listener.StopListening(context.WithoutCancel(ctx))
		if ctx.Err() != nil || !open {
			return rt.leave(context.Background(), out, chatSaveOnExit)
		}
		if err != nil {
			reportListenError(out, err)
			continue
		}
		if text == "" {
			fmt.Fprintln(out, "(heard nothing)")
			continue
		}

		fmt.Fprintf(out, "> %s\n", text)
		rt.say(ctx, out, p, text)
	}
}

func reportListenError(out io.Writer, err error) {
	if errors.Is(err, speech.ErrEmptyRecording) {
		fmt.Fprintln(out, "(heard nothing)")
		return
	}
	fmt.Fprintf(out, "(transcription failed: %v)\n", err)
}
