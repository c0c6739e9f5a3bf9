package generate

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/rulepool/pkg/mode"
	"github.com/macropower/rulepool/pkg/render"
)

// ErrUnknownDocument is returned by [Generator.Render] for a document the
// mode configuration does not produce.
var ErrUnknownDocument = errors.New("unknown document")

// Render loads src like [Generator.Generate] and renders the single named
// document without writing anything.
func (g *Generator) Render(ctx context.Context, src any, name string) (*render.Document, error) {
	ctx, span := g.tracer.Start(ctx, "render", trace.WithAttributes(
		attribute.String("document", name),
	))
	defer span.End()

	cfg, _, err := g.load(ctx, src)
	if err != nil {
		return nil, err
	}

	for _, d := range documents(cfg) {
		if d.name != name {
			continue
		}

		rc := g.rc
		rc.GeneratedAt = g.now()

		doc, err := g.renderDocument(cfg, d, g.resolve(ctx, cfg).ResolvedRules, rc)
		if err != nil {
			span.RecordError(err)

			return nil, err
		}

		span.SetAttributes(attribute.Int("rules", len(doc.RuleIDs)))

		return doc, nil
	}

	return nil, fmt.Errorf("%w %q in mode %q", ErrUnknownDocument, name, cfg.ID)
}

// Documents returns the names of the documents cfg produces, in generation
// order.
func Documents(cfg *mode.Configuration) []string {
	docs := documents(cfg)

	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.name)
	}

	return names
}

// renderDocument renders d. Documents without a rule set use all, the
// rules the whole configuration resolves to.
func (g *Generator) renderDocument(cfg *mode.Configuration, d document, all []string, rc render.Context) (*render.Document, error) {
	ids := all
	if d.rs != nil {
		sel, err := mode.ResolveRuleSet(g.store, d.rs)
		if err != nil {
			return nil, fmt.Errorf("resolve rules: %w", err)
		}

		ids = sel.IDs
	}

	doc, err := g.engine.Document(d.name, cfg, d.rs, ids, rc)
	if err != nil {
		return nil, err //nolint:wrapcheck // Already carries the document name.
	}

	return doc, nil
}
