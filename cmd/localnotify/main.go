package main

import (
	"fmt"
	"os"

	"localnotify/internal/command"
)

var version = "dev"

func main() {
	if err := command.Execute(os.Args, os.Stdout, version); err != nil {
		fmt.Fprintf(os.Stderr, "localnotify: %s\n", err)
		os.Exit(1)
	}
}
