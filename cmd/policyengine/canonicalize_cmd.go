package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/meshward/policyguard/pkg/canonicalize"
)

// runCanonicalizeCmd implements `policyengine canonicalize`: read a JSON
// document and print its canonical byte form. By default this preserves
// number rendering exactly as parsed (pkg/canonicalize.Canonicalize);
// --strict instead applies RFC 8785 (JCS) via pkg/canonicalize.Strict,
// re-normalizing numbers for cross-platform content-addressing.
//
// Exit codes:
//
//	0 = canonicalized successfully
//	2 = runtime error (bad flags, malformed input, canonicalization failure)
func runCanonicalizeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("canonicalize", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inPath string
		strict bool
	)

	cmd.StringVar(&inPath, "in", "", "Path to JSON document (default: stdin)")
	cmd.BoolVar(&strict, "strict", false, "Use RFC 8785 (JCS) canonicalization instead of the default parser-preserving form")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var raw []byte
	var err error
	if inPath == "" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(inPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: read input: %v\n", err)
		return 2
	}

	var canonical []byte
	if strict {
		canonical, err = canonicalize.Strict(raw)
	} else {
		canonical, err = canonicalize.Canonicalize(raw)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	fmt.Fprintln(stdout, string(canonical))
	return 0
}
