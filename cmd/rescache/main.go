// Command rescache loads a resource tree into a rescache.Manager and
// optionally keeps it hot-reloaded.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/rescache/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
