// Package main is the entry point for the stockctl operator console.
package main

import (
	"errors"
	"fmt"
	"os"

	"stockflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !errors.Is(err, cli.ErrReported) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
