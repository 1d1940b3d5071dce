package main

import (
	"embed"
	"fmt"
	"os"

	"github.com/adrianpk/celoeval/internal/cli"
)

//go:embed all:prompts
var embeddedFS embed.FS

func main() {
	if err := cli.Execute(embeddedFS); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
