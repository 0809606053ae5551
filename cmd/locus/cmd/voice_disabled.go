//go:build !voice

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Spoken conversation (build with -tags voice)",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := errors.New("this binary was built without audio support; rebuild with -tags voice")
		printError("voice", err)
		return err
	},
}

func init() {
	rootCmd.AddCommand(voiceCmd)
}
