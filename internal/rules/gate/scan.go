package gate

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"govengine/internal/rules/catalog"
)

// ScanExports parses the non-test Go files of dir and returns the exported
// package-level function, variable and constant names, sorted. An exported
// value such as a func-typed var is an implementation as much as a func is.
// Methods and types are not.
func ScanExports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read implementation dir: %w", err)
	}

	fset := token.NewFileSet()
	seen := map[string]struct{}{}
	files := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		files++
		for _, decl := range file.Decls {
			for _, ident := range exportedNames(decl) {
				seen[ident.Name] = struct{}{}
			}
		}
	}
	if files == 0 {
		return nil, fmt.Errorf("no Go source files in %s", dir)
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func exportedNames(decl ast.Decl) []*ast.Ident {
	var out []*ast.Ident
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Recv == nil && d.Name.IsExported() {
			out = append(out, d.Name)
		}
	case *ast.GenDecl:
		if d.Tok != token.VAR && d.Tok != token.CONST {
			return nil
		}
		for _, spec := range d.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, name := range vs.Names {
				if name.IsExported() {
					out = append(out, name)
				}
			}
		}
	}
	return out
}

// Paths locates the gate inputs on disk.
type Paths struct {
	Rules    string
	UseCases string
	ImplDir  string
}

// Load reads the two governed documents and scans the implementation
// package concurrently. registered is the compiled registration table.
func Load(ctx context.Context, paths Paths, registered []string) (Inputs, error) {
	in := Inputs{Registered: registered}
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := os.ReadFile(paths.Rules)
		if err != nil {
			return fmt.Errorf("read rule catalog: %w", err)
		}
		in.Rules, err = catalog.ParseRules(data)
		return err
	})
	g.Go(func() error {
		data, err := os.ReadFile(paths.UseCases)
		if err != nil {
			return fmt.Errorf("read use-case catalog: %w", err)
		}
		in.UseCases, err = catalog.ParseUseCases(data)
		return err
	})
	g.Go(func() error {
		var err error
		in.Exports, err = ScanExports(paths.ImplDir)
		return err
	})
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}
