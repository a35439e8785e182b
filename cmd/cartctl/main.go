// Command cartctl shops the storefront from a terminal. The guest cart and
// the signed-in session live in a SQLite browser profile, so they carry over
// between invocations the way they carry over between page loads.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
