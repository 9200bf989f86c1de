// Package main is the entry point for the merge-warden CLI.
package main

import (
	"os"

	"github.com/mergewarden/mergewarden/cmd/mergewarden/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
