package main

import (
	"os"

	"github.com/vearutop/exr/cmd/exrtool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
