package pipeline_test

import (
	"encoding/json"
	"testing"

	"github.com/reearth/cms-items-api/internal/cms"
	"github.com/reearth/cms-items-api/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSchema = []cms.SchemaField{
		{Key: "title", Name: "Title", Type: "text"},
		{Key: "photo", Name: "Photo", Type: "asset"},
		{Key: "gallery", Name: "Gallery", Type: "asset", Multiple: true},
		{Key: "title", Name: "Duplicate title", Type: "textArea"},
	}

	testAssets = cms.NewAssetIndex([]cms.Asset{
		{ID: "asset_1", URL: "https://cdn.example.com/1.png"},
		{ID: "asset_2", URL: "https://cdn.example.com/2.png"},
		{ID: "asset_empty", URL: ""},
	})
)

func TestEnrich(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fields []cms.Field

		want []cms.Field
	}{
		"Name is attached from schema": {
			fields: []cms.Field{{Key: "title", Type: "text", Value: "Hello"}},
			want:   []cms.Field{{Key: "title", Type: "text", Name: "Title", Value: "Hello"}},
		},
		"First schema definition wins on duplicate keys": {
			fields: []cms.Field{{Key: "title", Type: "text", Value: "Hello"}},
			want:   []cms.Field{{Key: "title", Type: "text", Name: "Title", Value: "Hello"}},
		},
		"Name is unset for keys missing from schema": {
			fields: []cms.Field{{Key: "unknown", Type: "text", Value: "x"}},
			want:   []cms.Field{{Key: "unknown", Type: "text", Value: "x"}},
		},
		"Single asset is resolved": {
			fields: []cms.Field{{Key: "photo", Type: "asset", Value: "asset_1"}},
			want:   []cms.Field{{Key: "photo", Type: "asset", Name: "Photo", Value: "https://cdn.example.com/1.png"}},
		},
		"Unresolvable asset keeps its identifier": {
			fields: []cms.Field{{Key: "photo", Type: "asset", Value: "asset_404"}},
			want:   []cms.Field{{Key: "photo", Type: "asset", Name: "Photo", Value: "asset_404"}},
		},
		"Asset without URL keeps its identifier": {
			fields: []cms.Field{{Key: "photo", Type: "asset", Value: "asset_empty"}},
			want:   []cms.Field{{Key: "photo", Type: "asset", Name: "Photo", Value: "asset_empty"}},
		},
		"Multiple assets are resolved independently": {
			fields: []cms.Field{{Key: "gallery", Type: "asset", Value: []any{"asset_1", "asset_404", json.Number("3"), "asset_2"}}},
			want: []cms.Field{{Key: "gallery", Type: "asset", Name: "Gallery", Value: []any{
				"https://cdn.example.com/1.png", "asset_404", json.Number("3"), "https://cdn.example.com/2.png",
			}}},
		},
		"Schema type wins over item type": {
			fields: []cms.Field{{Key: "photo", Type: "reference", Value: "asset_1"}},
			want:   []cms.Field{{Key: "photo", Type: "reference", Name: "Photo", Value: "https://cdn.example.com/1.png"}},
		},
		"Item type is used for keys missing from schema": {
			fields: []cms.Field{{Key: "extra", Type: "asset", Value: "asset_2"}},
			want:   []cms.Field{{Key: "extra", Type: "asset", Value: "https://cdn.example.com/2.png"}},
		},
		"Non asset values pass through": {
			fields: []cms.Field{{Key: "title", Type: "text", Value: "asset_1"}},
			want:   []cms.Field{{Key: "title", Type: "text", Name: "Title", Value: "asset_1"}},
		},
		"Non string asset values pass through": {
			fields: []cms.Field{{Key: "photo", Type: "asset", Value: map[string]any{"id": "asset_1"}}},
			want:   []cms.Field{{Key: "photo", Type: "asset", Name: "Photo", Value: map[string]any{"id": "asset_1"}}},
		},
		"Field order and duplicates are preserved": {
			fields: []cms.Field{
				{Key: "photo", Type: "asset", Value: "asset_2"},
				{Key: "title", Type: "text", Value: "b"},
				{Key: "title", Type: "text", Value: "a"},
			},
			want: []cms.Field{
				{Key: "photo", Type: "asset", Name: "Photo", Value: "https://cdn.example.com/2.png"},
				{Key: "title", Type: "text", Name: "Title", Value: "b"},
				{Key: "title", Type: "text", Name: "Title", Value: "a"},
			},
		},
		"No fields": {
			fields: nil,
			want:   []cms.Field{},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			items := []cms.Item{{ID: "item_1", Fields: tc.fields, CreatedAt: "2024-01-01T00:00:00Z", UpdatedAt: "2024-01-02T00:00:00Z"}}

			got := pipeline.Enrich(items, testSchema, testAssets)
			require.Len(t, got, 1)
			assert.Equal(t, "item_1", got[0].ID)
			assert.Equal(t, "2024-01-01T00:00:00Z", got[0].CreatedAt)
			assert.Equal(t, "2024-01-02T00:00:00Z", got[0].UpdatedAt)
			assert.Equal(t, tc.want, got[0].Fields)
		})
	}
}

func TestEnrichPreservesItemOrder(t *testing.T) {
	t.Parallel()

	items := []cms.Item{{ID: "c"}, {ID: "a"}, {ID: "b"}, {ID: "a"}}

	got := pipeline.Enrich(items, nil, nil)

	ids := make([]string, 0, len(got))
	for _, item := range got {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"c", "a", "b", "a"}, ids)
}

func TestEnrichDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	gallery := []any{"asset_1"}
	items := []cms.Item{{ID: "i", Fields: []cms.Field{
		{Key: "photo", Type: "asset", Value: "asset_1"},
		{Key: "gallery", Type: "asset", Value: gallery},
	}}}

	_ = pipeline.Enrich(items, testSchema, testAssets)

	assert.Equal(t, "asset_1", items[0].Fields[0].Value)
	assert.Empty(t, items[0].Fields[0].Name)
	assert.Equal(t, []any{"asset_1"}, gallery)
}
