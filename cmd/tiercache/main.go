// Command tiercache operates a tiered cache described by a YAML file.
// Durable tiers (badger, sqlite) keep entries across invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	err := NewApp().ExecuteWithArgs(context.Background(), os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, errNotFound):
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "tiercache:", err)
		os.Exit(1)
	}
}
