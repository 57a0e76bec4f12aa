// Command cachefsd runs the in-memory file cache server.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/cachefsd/cmd/cachefsd/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
