package main

import (
	"os"

	"github.com/Additional-Code/atelier/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
