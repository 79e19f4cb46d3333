// Package main is the entry point for the odieux application.
package main

import (
	"os"

	"github.com/Rrogntudju/odieux/cmd/odieux/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
