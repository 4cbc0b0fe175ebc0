package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

func main() {
	// Locked buffers are wiped even when a signal interrupts the process.
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		memguard.Purge()
		os.Exit(1)
	}
}
