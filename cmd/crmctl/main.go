package main

import (
	"os"

	"github.com/JonMunkholm/crm/cmd/crmctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
