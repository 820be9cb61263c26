package main

import (
	"os"

	"github.com/m-voss/devcell/cmd/devcellctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
