package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const fixtureUseCases = `
use_cases:
  - {id: UC01, name: Register, rule_ids: [RN01]}
`

func TestRepositoryPasses(t *testing.T) {
	root := filepath.Join("..", "..")
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"--rules", filepath.Join(root, "governance", "institutional-rules.yaml"),
		"--use-cases", filepath.Join(root, "governance", "use-cases.yaml"),
		"--impl-dir", filepath.Join(root, "internal", "rules", "impl"),
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "PASS governance gate") {
		t.Fatalf("expected PASS summary, got %q", stdout.String())
	}
}

func TestUnknownEngineRefFails(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFixture(t, dir, "rules.yaml", `
rules:
  - {id: RN01, name: Legality, severity: CRITICAL, engine_ref: NoSuchFunc, applies_to_use_cases: [UC01]}
`)
	useCasesPath := writeFixture(t, dir, "use-cases.yaml", fixtureUseCases)

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"--rules", rulesPath,
		"--use-cases", useCasesPath,
		"--impl-dir", filepath.Join("..", "..", "internal", "rules", "impl"),
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stdout.String(), "FAIL [A] RN01") {
		t.Fatalf("expected RN01 to be named, got %q", stdout.String())
	}
}

func TestMissingInputFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--rules", filepath.Join(t.TempDir(), "absent.yaml")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "FAIL governance gate") {
		t.Fatalf("expected failure on stderr, got %q", stderr.String())
	}
}

func TestBadFlagFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--bogus"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
}
