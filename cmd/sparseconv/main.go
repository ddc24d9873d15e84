// Command sparseconv manages soft-masked convolution layers stored as
// SafeTensors files: it creates, prunes, checkpoints and rewinds them, and
// decomposes a pruned layer into smaller convolutions.
package main

import (
	"context"
	"fmt"
	"os"
)

const version = "v0.1.0-dev"

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
