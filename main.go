package main

import (
	"fmt"
	"os"

	"github.com/mbeckner/civicrawl/cmd/httpd"
)

func main() {
	if err := httpd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "civicrawl: %v\n", err)
		os.Exit(1)
	}
}
