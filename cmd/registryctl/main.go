// Command registryctl inspects and administers an implementation registry deployment.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Build information injected via ldflags at build time.
var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
