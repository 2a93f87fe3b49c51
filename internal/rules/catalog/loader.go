package catalog

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"govengine/internal/rules/models"
	dErrors "govengine/pkg/domain-errors"
)

// Load reads both governed documents concurrently and fails closed: any
// read or validation error in either document yields no catalog.
func Load(ctx context.Context, rulesPath, useCasesPath string) (*Catalog, error) {
	var (
		rules    []models.Rule
		useCases []models.UseCase
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := readFile(ctx, rulesPath)
		if err != nil {
			return err
		}
		rules, err = ParseRules(data)
		return err
	})
	g.Go(func() error {
		data, err := readFile(ctx, useCasesPath)
		if err != nil {
			return err
		}
		useCases, err = ParseUseCases(data)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(rules, useCases), nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "rule catalog load cancelled")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read "+path)
	}
	return data, nil
}
