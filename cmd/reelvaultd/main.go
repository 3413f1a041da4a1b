package main

import (
	"fmt"
	"os"

	"github.com/civictech-tv/reelvault-core/cmd/reelvaultd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
