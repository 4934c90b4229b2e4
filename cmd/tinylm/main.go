package main

import (
	"os"

	"github.com/xupit3r/tinylm/cmd/tinylm/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
