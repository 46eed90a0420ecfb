package main

import (
	"os"

	"github.com/ppiankov/tagwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
