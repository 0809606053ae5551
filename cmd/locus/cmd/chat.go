package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/locus/backend/internal/locale"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
	"github.com/zhouzirui/locus/backend/internal/store/transcript"
)

var chatSaveOnExit bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Text conversation with the barista",
	Long: `在咖啡馆里用文字对话。

对话中可用的命令:
  /reset          清空对话
  /save [title]   保存对话并重新开始
  /level <level>  beginner、intermediate 或 advanced
  /quit           退出`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolVar(&chatSaveOnExit, "save-on-exit", false, "save the conversation when leaving")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, profile, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}

	rt, err := newRuntime(ctx, cfg, profile, nil)
	if err != nil {
		printError("start conversation", err)
		return err
	}
	defer rt.Close(context.Background())

	out := cmd.OutOrStdout()
	events, cancel := rt.engine.Subscribe()
	defer cancel()
	p := newPrinter(out, rt.engine.Scene().PersonaName)
	go p.run(events)

	sc := rt.engine.Scene()
	fmt.Fprintf(out, "%s · %s (%s, %s)\n", sc.Title, sc.PersonaName, languageLabel(rt.session.Config.TargetLanguage), rt.session.Config.Level)
	fmt.Fprintf(out, "(%s)\n", rt.session.LevelDescription)
	if sc.Opening != "" {
		fmt.Fprintf(out, "%s: %s\n", sc.PersonaName, sc.Opening)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return rt.leave(context.Background(), out, chatSaveOnExit)
		case line, ok = <-lines:
			if !ok {
				return rt.leave(context.Background(), out, chatSaveOnExit)
			}
		}

		c := parseCommand(line)
		switch c.name {
		case "quit":
			return rt.leave(context.Background(), out, chatSaveOnExit)
		case "reset":
			rt.engine.ResetChat()
			fmt.Fprintln(out, "(conversation cleared)")
		case "save":
			if rt.reportSave(ctx, out, c.arg) {
				rt.engine.ResetChat()
			}
		case "level":
			rt.setLevel(ctx, out, c.arg)
		case "":
			rt.say(ctx, out, p, c.arg)
		default:
			fmt.Fprintf(out, "unknown command /%s\n", c.name)
		}
	}
}

// say sends one user line and blocks until the reply has been printed.
func (r *runtime) say(ctx context.Context, out io.Writer, p *printer, text string) {
	turn, err := r.engine.SendMessage(ctx, text)
	switch {
	case errors.Is(err, conversation.ErrEmptyInput):
		return
	case errors.Is(err, conversation.ErrDuplicateInput):
		fmt.Fprintln(out, "(same as your last message, ignored)")
		return
	case err != nil:
		fmt.Fprintf(out, "(%v)\n", err)
		return
	}

	if err := turn.Wait(ctx); err != nil {
		return
	}
	p.waitSettled(turn.Token, 2*time.Second)
}

func (r *runtime) reportSave(ctx context.Context, out io.Writer, title string) bool {
	saved, stored, err := r.save(ctx, title)
	if !stored {
		fmt.Fprintln(out, "(nothing to save)")
		return false
	}
	if err != nil && !errors.Is(err, transcript.ErrPersist) {
		fmt.Fprintf(out, "(save failed: %v)\n", err)
		return false
	}
	if err != nil {
		fmt.Fprintf(out, "(saved for this run only: %v)\n", err)
	}
	fmt.Fprintf(out, "(saved %q as %s)\n", saved.Title, saved.ID)
	return true
}

func (r *runtime) setLevel(ctx context.Context, out io.Writer, raw string) {
	level, err := session.ParseLevel(raw)
	if err != nil {
		fmt.Fprintf(out, "(%v)\n", err)
		return
	}
	updated, err := r.chat.UpdateConfig(ctx, r.session.ID, session.Config{Level: level})
	if err != nil {
		fmt.Fprintf(out, "(%v)\n", err)
		return
	}
	fmt.Fprintf(out, "(level set to %s: %s)\n", updated.Config.Level, updated.LevelDescription)
}

func (r *runtime) leave(ctx context.Context, out io.Writer, saveFirst bool) error {
	if saveFirst {
		r.reportSave(ctx, out, "")
	}
	return nil
}

type command struct {
	name string
	arg  string
}

// parseCommand splits "/name arg"; plain text has an empty name.
func parseCommand(line string) command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{arg: line}
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	name = strings.ToLower(name)
	if name == "exit" || name == "q" {
		name = "quit"
	}
	return command{name: name, arg: strings.TrimSpace(arg)}
}

func languageLabel(code string) string {
	if name := locale.LanguageName(code); name != "" {
		return name
	}
	return code
}
