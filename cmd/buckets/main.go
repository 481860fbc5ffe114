package main

import (
	"fmt"
	"os"

	"cloudbuckets/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "buckets: %v\n", err)
		os.Exit(1)
	}
}
