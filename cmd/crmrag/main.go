// Package main provides the entry point for the crmrag CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/crmrag/cmd/crmrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
