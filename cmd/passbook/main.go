package main

import (
	"os"

	"github.com/passbook-dev/passbook/internal/commands"
)

func main() {
	os.Exit(commands.Execute(os.Args[1:]))
}
