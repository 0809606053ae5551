package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/locus/backend/internal/model/chat"
	"github.com/zhouzirui/locus/backend/internal/store/transcript"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List, show or delete saved conversations",
	RunE:  runLogsList,
}

var logsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsShow,
}

var logsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsDelete,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsShowCmd, logsDeleteCmd)
}

func openLogs() (transcript.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return transcript.Open(cfg.Store.Backend, cfg.Store.Path())
}

func runLogsList(cmd *cobra.Command, args []string) error {
	store, err := openLogs()
	if err != nil {
		printError("open chat logs", err)
		return err
	}
	defer store.Close()

	items, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	writeLogList(cmd.OutOrStdout(), items)
	return nil
}

func runLogsShow(cmd *cobra.Command, args []string) error {
	store, err := openLogs()
	if err != nil {
		printError("open chat logs", err)
		return err
	}
	defer store.Close()

	item, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		printError("show", err)
		return err
	}
	writeLog(cmd.OutOrStdout(), item)
	return nil
}

func runLogsDelete(cmd *cobra.Command, args []string) error {
	store, err := openLogs()
	if err != nil {
		printError("open chat logs", err)
		return err
	}
	defer store.Close()

	return deleteLog(cmd.Context(), cmd.OutOrStdout(), store, args[0])
}

func deleteLog(ctx context.Context, out io.Writer, store transcript.Store, id string) error {
	err := store.Delete(ctx, id)
	switch {
	case errors.Is(err, transcript.ErrPersist):
		fmt.Fprintf(out, "deleted %s (not written to disk: %v)\n", id, err)
		return nil
	case err != nil:
		printError("delete", err)
		return err
	}
	fmt.Fprintf(out, "deleted %s\n", id)
	return nil
}

func writeLogList(out io.Writer, items []chat.ChatLog) {
	if len(items) == 0 {
		fmt.Fprintln(out, "no saved conversations")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tLANGUAGE\tMESSAGES\tSAVED")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", item.ID, item.Title, item.LanguageCode, len(item.Messages), item.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func writeLog(out io.Writer, item chat.ChatLog) {
	fmt.Fprintf(out, "%s (%s)\n\n", item.Title, item.Timestamp.Local().Format("2006-01-02 15:04"))
	for _, msg := range item.Messages {
		speaker := "Locus"
		if msg.IsUser {
			speaker = "You"
		}
		fmt.Fprintf(out, "%s: %s\n", speaker, msg.Content)
	}
}
