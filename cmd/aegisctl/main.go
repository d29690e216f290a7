// Package main is the aegisctl command line tool.
package main

import (
	"os"

	"github.com/aristath/aegis/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
