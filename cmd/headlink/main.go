package main

import (
	"os"

	"headlink/cmd/headlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
