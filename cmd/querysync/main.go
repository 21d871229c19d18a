// Command querysync encodes and decodes query state URLs, edits the
// persisted query state and serves the list views over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	cli := NewCLI(os.Stdout, os.Stderr)
	if err := cli.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
