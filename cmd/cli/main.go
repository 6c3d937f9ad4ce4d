package main

import (
	"os"

	"github.com/chatdesk-dev/chatdesk/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
