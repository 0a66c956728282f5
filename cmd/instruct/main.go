package main

import (
	"os"

	"github.com/floormgmt/instruct/cmd/instruct/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
