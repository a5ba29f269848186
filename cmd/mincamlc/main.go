// Command mincamlc is the compiler's CLI entry point. Mirrors the
// teacher's src/main.go's main: parse flags, run the pipeline, report
// errors. The teacher's output-writer goroutine plus WaitGroup handshake
// is gone along with the rest of its concurrent plumbing (internal/driver
// writes output directly once, synchronously).
package main

import (
	"fmt"
	"os"

	"github.com/mincamlc/mincamlc/internal/driver"
)

func main() {
	opt, err := driver.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "command line argument error: %s\n", err)
		os.Exit(1)
	}

	if err := driver.Run(opt); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
