package main

import (
	"os"

	"github.com/pawtrait/pawtrait-api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
