package main

import (
	"os"

	"github.com/neo-alexandria/neoalex/cmd/neoalex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
