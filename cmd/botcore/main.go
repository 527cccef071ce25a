package main

import (
	"os"

	"github.com/rustyeddy/botcore/cmd/botcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
