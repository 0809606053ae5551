package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/locus/backend/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "locus",
	Short: "Locus - 在咖啡馆里练外语",
	Long: `Locus 是一个终端里的语言陪练：AI 咖啡师用目标语言和你对话。

Commands:
  chat   - 文字对话
  voice  - 语音对话（需要以 -tags voice 编译）
  logs   - 查看或删除保存的对话记录`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.SetOutput(io.Discard)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "TOML profile (default: ./locus.toml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose Output")
}

// loadConfig 读取 .env、环境变量和可选的 TOML profile。
func loadConfig() (*config.Config, *config.Profile, error) {
	if err := godotenv.Load(); err != nil && verbose {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("locus.toml"); err != nil {
			return cfg, &config.Profile{}, nil
		}
		path = "locus.toml"
	}

	profile, err := config.LoadProfile(path)
	if err != nil {
		return nil, nil, err
	}
	profile.Apply(cfg)
	return cfg, profile, nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
