package pipeline

import (
	"github.com/reearth/cms-items-api/internal/cms"
	"github.com/reearth/cms-items-api/internal/constants"
)

// Enrich returns a copy of items where each field carries the display name of its schema field,
// and where asset values are replaced by the URL of the asset they reference.
//
// Item and field orders are preserved. Asset identifiers which cannot be resolved are kept as is.
func Enrich(items []cms.Item, schema []cms.SchemaField, assets cms.AssetIndex) []cms.Item {
	defs := indexSchema(schema)

	enriched := make([]cms.Item, 0, len(items))
	for _, item := range items {
		fields := make([]cms.Field, 0, len(item.Fields))
		for _, f := range item.Fields {
			fields = append(fields, enrichField(f, defs, assets))
		}
		enriched = append(enriched, cms.Item{
			ID:        item.ID,
			Fields:    fields,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	return enriched
}

func enrichField(f cms.Field, defs map[string]cms.SchemaField, assets cms.AssetIndex) cms.Field {
	declaredType := f.Type
	var name string
	if def, ok := defs[f.Key]; ok {
		name = def.Name
		declaredType = def.Type
	}

	value := f.Value
	if declaredType == constants.AssetFieldType {
		value = resolveAssets(f.Value, assets)
	}

	return cms.Field{
		ID:    f.ID,
		Key:   f.Key,
		Type:  f.Type,
		Name:  name,
		Value: value,
	}
}

// resolveAssets maps a single asset identifier, or each identifier of a list, to its URL.
// Anything else is returned unchanged.
func resolveAssets(v any, assets cms.AssetIndex) any {
	switch v := v.(type) {
	case string:
		if u, ok := assets.URL(v); ok {
			return u
		}
		return v
	case []any:
		resolved := make([]any, len(v))
		for i, e := range v {
			id, ok := e.(string)
			if !ok {
				resolved[i] = e
				continue
			}
			if u, ok := assets.URL(id); ok {
				resolved[i] = u
				continue
			}
			resolved[i] = id
		}
		return resolved
	default:
		return v
	}
}

// indexSchema returns the schema fields by key. The first definition of a key wins.
func indexSchema(schema []cms.SchemaField) map[string]cms.SchemaField {
	defs := make(map[string]cms.SchemaField, len(schema))
	for _, def := range schema {
		if _, ok := defs[def.Key]; ok {
			continue
		}
		defs[def.Key] = def
	}
	return defs
}
