package main

import (
	"os"

	"captchad/internal/cli"
)

func main() {
	os.Exit(cli.Main())
}
