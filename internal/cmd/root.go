// Package cmd 定義 debate-room 的命令列入口。
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"debate_room/pkg/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "debate-room",
	Short: "Real-time debate and discussion rooms with AI facilitation",
	Long: `debate-room hosts turn-based debate and discussion rooms over WebSocket.
Every statement is persisted with a per-room sequence number, and a facilitator
agent periodically posts feedback to everyone in the room.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./pkg/config/config.yaml or ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadConfig 讀取設定檔與 DEBATE_ROOM_ 環境變數
func loadConfig() (*config.Config, error) {
	return config.Load(viper.New(), cfgFile)
}

// newLogger 依設定建立 slog logger 並設為預設
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
