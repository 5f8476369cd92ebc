// Package main is the ctxline entry point.
package main

import (
	"fmt"
	"os"

	"ctxline/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
