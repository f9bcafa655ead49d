package main

import (
	"os"

	"ciphersock/cmd/ciphersock/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
