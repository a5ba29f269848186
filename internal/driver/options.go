// Package driver sequences the compiler's pipeline stages (parse,
// type-check, lower, code-generate, emit) and parses command-line
// options. Grounded on the teacher's src/util/args.go flag loop and
// src/main.go's run/main split, restated for a single synchronous
// pipeline (spec.md §5) with no worker goroutines or output channel.
package driver

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// appVersion mirrors util/args.go's appVersion constant, one per project.
const appVersion = "mincamlc 0.1"

// Target back ends selectable with -t.
const (
	TargetLLVM = iota
	TargetRISCV64
)

// Options holds every parsed command-line flag, restating util.Options's
// field set for this compiler's smaller surface (no -arch/-os/-vendor
// triple components or -threads: spec.md §5 rules out the teacher's
// parallel pipeline, and the LLVM back end derives its own target triple
// from -triple instead of assembling one from three separate flags).
type Options struct {
	Src     string // Path to source file; empty means read from stdin.
	Out     string // Path to output file; empty means a.out.o for TargetLLVM, stdout for TargetRISCV64.
	Verbose bool   // Print the generated LLVM IR / assembly to stderr before emitting.
	Target  int    // TargetLLVM (default) or TargetRISCV64.
	Triple  string // LLVM target triple override; empty uses the host default.
	CPU     string // LLVM target CPU override; empty uses "generic".
}

// ParseArgs parses os.Args[1:] into Options, following util/args.go's
// manual switch-based flag loop rather than reaching for a flag-parsing
// library: the grammar (trailing positional source path, `-flag value`
// pairs) doesn't fit the standard library's flag package cleanly either,
// and the teacher's own CLI is hand-rolled the same way.
func ParseArgs(args []string) (Options, error) {
	opt := Options{}
	if len(args) == 0 {
		return opt, nil
	}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-h", "--help", "-help":
			printHelp()
			os.Exit(0)
		case "-v", "--version", "-version":
			fmt.Println(appVersion)
			os.Exit(0)
		case "-vb":
			opt.Verbose = true
		case "-o":
			if i+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i])
			}
			opt.Out = args[i+1]
			i++
		case "-t":
			if i+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i])
			}
			switch args[i+1] {
			case "llvm":
				opt.Target = TargetLLVM
			case "riscv64":
				opt.Target = TargetRISCV64
			default:
				return opt, fmt.Errorf("unexpected target identifier: %s", args[i+1])
			}
			i++
		case "-triple":
			if i+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i])
			}
			opt.Triple = args[i+1]
			i++
		case "-cpu":
			if i+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i])
			}
			opt.CPU = args[i+1]
			i++
		default:
			if strings.HasPrefix(args[i], "-") {
				return opt, fmt.Errorf("unexpected flag: %s", args[i])
			}
			opt.Src = args[i]
		}
	}
	return opt, nil
}

// printHelp prints a usage message, matching util/args.go's printHelp
// tabwriter-aligned flag listing.
func printHelp() {
	w := tabwriter.NewWriter(os.Stdout, 6, 1, 1, 0, 0)
	_, _ = fmt.Fprintln(w, "-h, -help\tPrints this help message and exits.")
	_, _ = fmt.Fprintln(w, "-o\tPath to the output file. Defaults to a.out.o for 'llvm', stdout for 'riscv64'.")
	_, _ = fmt.Fprintln(w, "-t\tTarget back end: 'llvm' (default) or 'riscv64'.")
	_, _ = fmt.Fprintln(w, "-triple\tLLVM target triple override. Ignored for -t riscv64.")
	_, _ = fmt.Fprintln(w, "-cpu\tLLVM target CPU override. Ignored for -t riscv64.")
	_, _ = fmt.Fprintln(w, "-v, -version\tPrints the compiler version and exits.")
	_, _ = fmt.Fprintln(w, "-vb\tVerbose mode: print the generated IR/assembly before emitting.")
	_ = w.Flush()
}
