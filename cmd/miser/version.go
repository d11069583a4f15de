package main

import (
	"fmt"
	"runtime"
)

func printVersion() {
	fmt.Printf("miser %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
}
