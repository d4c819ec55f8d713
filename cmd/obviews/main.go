// Package main implements the obviews CLI. It renders the CFGs of a WCET
// analysis and serves them to a browser.
package main

import (
	"os"

	"github.com/l3aro/obviews/cmd/obviews/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.Version = version
	if buildTime != "" {
		commands.Version += " (" + buildTime + ")"
	}
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
