package service

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"govengine/internal/process/catalog"
	"govengine/internal/process/models"
	dErrors "govengine/pkg/domain-errors"
	audit "govengine/pkg/platform/audit"
	txcontext "govengine/pkg/platform/tx"
	"govengine/pkg/requestcontext"
)

// catalogLockKey serializes bootstraps with each other.
const catalogLockKey = "catalog"

// VersionRegression is a template whose new version sorts below the stored
// one. Regressions are recorded, not blocked.
type VersionRegression struct {
	Key  string `json:"key"`
	From string `json:"from"`
	To   string `json:"to"`
}

type BootstrapResult struct {
	Upserted           int                 `json:"upserted"`
	VersionRegressions []VersionRegression `json:"version_regressions,omitempty"`
}

// BootstrapCatalog upserts every template of c by key and records one
// catalog_bootstrapped event. Templates and the event commit together.
// Running it twice with the same catalog is idempotent.
func (s *Service) BootstrapCatalog(ctx context.Context, c *catalog.Catalog, actor string) (result *BootstrapResult, err error) {
	ctx, span := s.tracer.Start(ctx, "process.BootstrapCatalog")
	defer span.End()
	defer func() { s.finish(ctx, span, "bootstrap_catalog", err) }()

	if c == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "catalog is required")
	}
	actor, err = normalizeActor(actor)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("catalog.templates", len(c.Templates)))

	now := requestcontext.Now(ctx)
	result = &BootstrapResult{}
	err = s.tx.RunInTx(txcontext.WithLockKey(ctx, catalogLockKey), func(ctx context.Context) error {
		existing, err := s.templates.FindTemplates(ctx, c.Keys())
		if err != nil {
			return storeError(err, "", "failed to load stored templates")
		}
		regressions := versionRegressions(c.Templates, existing)

		for _, tpl := range c.Templates {
			stored := models.StoredTemplate{
				Template:       tpl.Clone(),
				CatalogVersion: c.Version,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.templates.UpsertTemplate(ctx, stored); err != nil {
				return storeError(err, "", "failed to upsert template")
			}
		}

		regressionMeta := make([]map[string]any, len(regressions))
		for i, r := range regressions {
			regressionMeta[i] = map[string]any{"key": r.Key, "from": r.From, "to": r.To}
		}
		if err := s.emit(ctx, audit.Event{
			Type:       audit.EventCatalogBootstrapped,
			ActorType:  audit.ActorAdmin,
			ActorRef:   actor,
			OccurredAt: now,
			Metadata: map[string]any{
				"scope":               "process",
				"catalog_version":     c.Version,
				"templates":           c.Keys(),
				"upserted":            len(c.Templates),
				"version_regressions": regressionMeta,
			},
		}); err != nil {
			return err
		}

		result.Upserted = len(c.Templates)
		result.VersionRegressions = regressions
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddTemplatesUpserted(result.Upserted)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("catalog.upserted", result.Upserted))
	for _, r := range result.VersionRegressions {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "template version regressed", "template_key", r.Key, "from", r.From, "to", r.To)
		}
	}
	return result, nil
}

// versionRegressions compares semantic versions. Versions that do not parse
// as semver are skipped since the field is a free-form label.
func versionRegressions(templates []models.Template, stored map[string]models.StoredTemplate) []VersionRegression {
	var out []VersionRegression
	for _, tpl := range templates {
		prev, ok := stored[tpl.Key]
		if !ok || prev.Version == tpl.Version {
			continue
		}
		from, err := semver.NewVersion(prev.Version)
		if err != nil {
			continue
		}
		to, err := semver.NewVersion(tpl.Version)
		if err != nil {
			continue
		}
		if to.LessThan(from) {
			out = append(out, VersionRegression{Key: tpl.Key, From: prev.Version, To: tpl.Version})
		}
	}
	return out
}

// ListTemplates returns stored templates ordered by key.
func (s *Service) ListTemplates(ctx context.Context) ([]models.StoredTemplate, error) {
	templates, err := s.templates.ListTemplates(ctx)
	if err != nil {
		return nil, storeError(err, "", "failed to list templates")
	}
	return templates, nil
}
