// Command policyengine is the operator CLI and HTTP front door for the
// policy decision point: load policy documents, evaluate a request context
// against them, canonicalize a document for signing, or run the long-lived
// evaluation server.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the dispatch entrypoint, factored out of main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "evaluate":
		return runEvaluateCmd(args[2:], stdout, stderr)
	case "canonicalize":
		return runCanonicalizeCmd(args[2:], stdout, stderr)
	case "serve":
		return runServeCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "policyengine - deterministic access-control policy evaluation")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  policyengine <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  evaluate       Evaluate a request context against a policy set")
	fmt.Fprintln(w, "  canonicalize   Canonicalize a JSON document (RFC 8785 with --strict)")
	fmt.Fprintln(w, "  serve          Run the policy decision HTTP server")
	fmt.Fprintln(w, "  help           Show this help")
	fmt.Fprintln(w, "")
}
