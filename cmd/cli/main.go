// Package main is the entry point for simctl.
// simctl is the terminal tool for driving simulations through the simplane API.
package main

import (
	"os"

	"simplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
