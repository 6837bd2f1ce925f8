// Package main is the entry point for the loquat pipeline service.
package main

import (
	"os"

	"github.com/loquat-fw/loquat/cmd/loquat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
