package main

import (
	"os"

	"github.com/zhouzirui/locus/backend/cmd/locus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
