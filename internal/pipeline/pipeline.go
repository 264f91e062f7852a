// Package pipeline turns raw CMS items into the published item list.
//
// Items, schema and assets are fetched concurrently, then items are enriched, projected,
// filtered and finally shaped.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/reearth/cms-items-api/internal/cms"
	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

// Fetcher reads the CMS resources the pipeline needs.
type Fetcher interface {
	GetItems(ctx context.Context, s cms.Scope) (cms.ItemsResponse, error)
	GetModel(ctx context.Context, s cms.Scope) (cms.Model, error)
	GetAssets(ctx context.Context, s cms.Scope) (cms.AssetsResponse, error)
}

// Settings are the per request pipeline settings.
type Settings struct {
	Scope      cms.Scope
	Projection Projection
	Filter     Filter
	Shape      Shape
}

// Result is the published item list.
type Result struct {
	Items []any `json:"items"`
	// TotalCount is the number of items reported by the CMS, before filtering.
	TotalCount *int `json:"totalCount,omitempty"`
}

// Runner runs the pipeline against a CMS.
type Runner struct {
	fetcher Fetcher
	log     *slog.Logger
}

// NewRunner returns a Runner reading from f and logging to log.
func NewRunner(f Fetcher, log *slog.Logger) Runner {
	if log == nil {
		log = slog.Default()
	}
	return Runner{fetcher: f, log: log}
}

// Run fetches, enriches, projects, filters and shapes the items of the configured model.
//
// A failure of any fetch fails the whole run: no partially enriched result is returned.
func (r Runner) Run(ctx context.Context, s Settings) (res Result, err error) {
	defer decorate.OnError(&err, "could not build items of model %q", s.Scope.ModelID)

	var (
		items  cms.ItemsResponse
		model  cms.Model
		assets cms.AssetsResponse
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		items, err = r.fetcher.GetItems(gCtx, s.Scope)
		return err
	})
	g.Go(func() (err error) {
		model, err = r.fetcher.GetModel(gCtx, s.Scope)
		return err
	})
	g.Go(func() (err error) {
		assets, err = r.fetcher.GetAssets(gCtx, s.Scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	r.log.Debug("Fetched CMS resources", "model", s.Scope.ModelID, "items", len(items.Items),
		"schema_fields", len(model.Schema.Fields), "assets", len(assets.Items))

	enriched := Enrich(items.Items, model.Schema.Fields, cms.NewAssetIndex(assets.Items))
	projected := s.Projection.ApplyAll(enriched)
	admitted := s.Filter.Apply(projected)

	if len(admitted) != len(projected) {
		r.log.Debug("Filtered items", "admitted", len(admitted), "rejected", len(projected)-len(admitted))
	}

	shape := s.Shape
	if shape == "" {
		shape = ShapeFlat
	}

	return Result{
		Items:      Render(admitted, shape),
		TotalCount: items.TotalCount,
	}, nil
}
