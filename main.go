package main

import (
	"os"

	"github.com/cadenza-ml/cadenza/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
