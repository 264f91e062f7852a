package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/reearth/cms-items-api/internal/cms"
	"github.com/reearth/cms-items-api/internal/pipeline"
	"github.com/reearth/cms-items-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	items  cms.ItemsResponse
	model  cms.Model
	assets cms.AssetsResponse

	itemsErr  error
	modelErr  error
	assetsErr error
}

func (f fakeFetcher) GetItems(context.Context, cms.Scope) (cms.ItemsResponse, error) {
	return f.items, f.itemsErr
}

func (f fakeFetcher) GetModel(context.Context, cms.Scope) (cms.Model, error) {
	return f.model, f.modelErr
}

func (f fakeFetcher) GetAssets(context.Context, cms.Scope) (cms.AssetsResponse, error) {
	return f.assets, f.assetsErr
}

func TestRun(t *testing.T) {
	t.Parallel()

	total := 3
	fetcher := fakeFetcher{
		items: cms.ItemsResponse{
			Items: []cms.Item{
				{ID: "item_1", Fields: []cms.Field{
					{Key: "title", Type: "text", Value: "First"},
					{Key: "status", Type: "select", Value: "published"},
					{Key: "photo", Type: "asset", Value: "asset_1"},
				}},
				{ID: "item_2", Fields: []cms.Field{
					{Key: "title", Type: "text", Value: "Second"},
					{Key: "status", Type: "select", Value: "draft"},
					{Key: "photo", Type: "asset", Value: "asset_404"},
				}},
				{ID: "item_3", Fields: []cms.Field{
					{Key: "title", Type: "text", Value: "Third"},
				}},
			},
			TotalCount: &total,
		},
		model: cms.Model{Schema: cms.Schema{Fields: []cms.SchemaField{
			{Key: "title", Name: "Title", Type: "text"},
			{Key: "photo", Name: "Photo", Type: "asset"},
		}}},
		assets: cms.AssetsResponse{Items: []cms.Asset{{ID: "asset_1", URL: "https://cdn/1.png"}}},
	}

	tests := map[string]struct {
		fields string
		filter string
		shape  pipeline.Shape

		fetchErr string

		want    string
		wantErr bool
	}{
		"All items flat": {
			want: `[
				{"id":"item_1","title":"First","status":"published","photo":"https://cdn/1.png"},
				{"id":"item_2","title":"Second","status":"draft","photo":"asset_404"},
				{"id":"item_3","title":"Third"}
			]`,
		},
		"Projected items": {
			fields: "title,photo",
			want: `[
				{"id":"item_1","title":"First","photo":"https://cdn/1.png"},
				{"id":"item_2","title":"Second","photo":"asset_404"},
				{"id":"item_3","title":"Third"}
			]`,
		},
		"Filtered items": {
			filter: "status===published|archived",
			want:   `[{"id":"item_1","title":"First","status":"published","photo":"https://cdn/1.png"}]`,
		},
		"Filter runs on projected fields": {
			fields: "title",
			filter: "status===published",
			want:   `[]`,
		},
		"Nested items": {
			fields: "title",
			filter: "title===Third",
			shape:  pipeline.ShapeNested,
			want:   `[{"id":"item_3","createdAt":"","fields":[{"key":"title","type":"text","name":"Title","value":"Third"}]}]`,
		},

		"Error on items failure":  {fetchErr: "items", wantErr: true},
		"Error on schema failure": {fetchErr: "model", wantErr: true},
		"Error on assets failure": {fetchErr: "assets", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := fetcher
			switch tc.fetchErr {
			case "items":
				f.itemsErr = cms.ErrFetchFailed
			case "model":
				f.modelErr = cms.ErrFetchFailed
			case "assets":
				f.assetsErr = cms.ErrFetchFailed
			}

			filter, err := pipeline.ParseFilter(tc.filter, pipeline.FilterPermissive)
			require.NoError(t, err, "Setup: could not parse filter")

			r := pipeline.NewRunner(f, nil)
			got, err := r.Run(t.Context(), pipeline.Settings{
				Scope:      cms.Scope{ProjectID: "proj", ModelID: "model"},
				Projection: pipeline.ParseProjection(tc.fields),
				Filter:     filter,
				Shape:      tc.shape,
			})
			if tc.wantErr {
				require.ErrorIs(t, err, cms.ErrFetchFailed)
				assert.Nil(t, got.Items, "No partial result should be returned")
				return
			}
			require.NoError(t, err)

			b, err := json.Marshal(got.Items)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
			assert.Equal(t, &total, got.TotalCount, "Total count should be the CMS one")
		})
	}
}

func TestRunAgainstCMS(t *testing.T) {
	t.Parallel()

	items := testutils.GenerateItems(230)
	srv := testutils.NewCMSServer(t, testutils.CMSContent{
		Token: "cms-token",
		Items: items,
		Model: cms.Model{Schema: cms.Schema{Fields: []cms.SchemaField{{Key: "title", Name: "Title", Type: "text"}}}},
	})

	c, err := cms.New(srv.URL, "cms-token")
	require.NoError(t, err, "Setup: could not create client")

	filter, err := pipeline.ParseFilter("rank===1|101|201", pipeline.FilterStrict)
	require.NoError(t, err, "Setup: could not parse filter")

	got, err := pipeline.NewRunner(c, nil).Run(t.Context(), pipeline.Settings{
		Scope:  cms.Scope{ProjectID: "proj", ModelID: "model"},
		Filter: filter,
		Shape:  pipeline.ShapeFlat,
	})
	require.NoError(t, err)

	b, err := json.Marshal(got.Items)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"id":"item_1","title":"Title 1","rank":1},
		{"id":"item_101","title":"Title 101","rank":101},
		{"id":"item_201","title":"Title 201","rank":201}
	]`, string(b))
	require.NotNil(t, got.TotalCount)
	assert.Equal(t, 230, *got.TotalCount)
}
