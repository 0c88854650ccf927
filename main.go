// Package main provides the entry point for the nonediag CLI tool.
// nonediag diagnoses why a NoneBot2 bot failed to start from its log and project files.
package main

import (
	"os"

	"github.com/NCBM/nonediag/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
