// Package main provides the qbox CLI.
package main

import (
	"os"

	"github.com/qbox-labs/qbox/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
