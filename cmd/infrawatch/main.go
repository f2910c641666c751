package main

import (
	"os"

	"github.com/infrawatch/infrawatch/cmd/infrawatch/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
