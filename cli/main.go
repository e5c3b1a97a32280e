package main

import (
	"github.com/BioHazard786/Warpcall/cli/cmd"
	"github.com/BioHazard786/Warpcall/cli/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
