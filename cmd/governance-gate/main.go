// Command governance-gate checks that the institutional rule document, the
// use-case document and the compiled rule implementations are mutually
// consistent. It exits 0 when they are and 1 otherwise, printing every
// violation found. Run it in CI from the repository root.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"govengine/internal/rules"
	"govengine/internal/rules/gate"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("governance-gate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rulesPath := fs.String("rules", "governance/institutional-rules.yaml", "institutional rule document")
	useCasesPath := fs.String("use-cases", "governance/use-cases.yaml", "use-case document")
	implDir := fs.String("impl-dir", "internal/rules/impl", "package holding the rule implementations")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	in, err := gate.Load(ctx, gate.Paths{
		Rules:    *rulesPath,
		UseCases: *useCasesPath,
		ImplDir:  *implDir,
	}, rules.Registered())
	if err != nil {
		fmt.Fprintf(stderr, "FAIL governance gate: %v\n", err)
		return 1
	}

	report := gate.Run(in)
	if err := report.Write(stdout, in); err != nil {
		fmt.Fprintf(stderr, "write report: %v\n", err)
		return 1
	}
	if !report.Passed() {
		return 1
	}
	return 0
}
