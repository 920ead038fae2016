// Package main provides the linkcrawl command.
//
// Usage:
//
//	linkcrawl crawl https://example.com/
//	linkcrawl crawl --seeds-file seeds.txt -j 8 -o links.txt
//	linkcrawl canon http://Example.com/a#top
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
