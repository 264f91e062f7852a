package pipeline

import (
	"strings"

	"github.com/reearth/cms-items-api/internal/cms"
)

// Projection is the set of field keys kept in responses.
// A nil Projection keeps every field.
type Projection map[string]struct{}

// NewProjection returns the projection keeping keys. Keys are trimmed and empty keys are ignored.
// It returns nil when no key remains.
func NewProjection(keys []string) Projection {
	var p Projection
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if p == nil {
			p = make(Projection)
		}
		p[k] = struct{}{}
	}
	return p
}

// ParseProjection parses a comma separated list of field keys.
func ParseProjection(s string) Projection {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NewProjection(strings.Split(s, ","))
}

// Apply returns item with only the fields whose key is part of the projection.
// Identifier and timestamps are always kept.
func (p Projection) Apply(item cms.Item) cms.Item {
	if p == nil {
		return item
	}

	fields := make([]cms.Field, 0, len(item.Fields))
	for _, f := range item.Fields {
		if _, ok := p[f.Key]; !ok {
			continue
		}
		fields = append(fields, f)
	}

	return cms.Item{
		ID:        item.ID,
		Fields:    fields,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

// ApplyAll projects every item, in order.
func (p Projection) ApplyAll(items []cms.Item) []cms.Item {
	if p == nil {
		return items
	}
	projected := make([]cms.Item, 0, len(items))
	for _, item := range items {
		projected = append(projected, p.Apply(item))
	}
	return projected
}
