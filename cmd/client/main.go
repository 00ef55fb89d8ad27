package main

import (
	"os"

	"mentalhealth-ai.bd/companion/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
