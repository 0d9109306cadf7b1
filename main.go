package main

import (
	"os"

	"debate_room/internal/cmd"
)

func main() {
	// 所有子命令 (serve、migrate) 定義在 internal/cmd
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
