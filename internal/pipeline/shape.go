package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reearth/cms-items-api/internal/cms"
)

// Shape is the JSON layout of items in responses.
type Shape string

const (
	// ShapeFlat spreads field values onto the item object, keyed by field key, alongside id.
	ShapeFlat Shape = "flat"
	// ShapeNested keeps the CMS layout: id, fields, createdAt and updatedAt.
	ShapeNested Shape = "nested"
)

// ParseShape returns the shape named s. An empty name selects ShapeFlat.
func ParseShape(s string) (Shape, error) {
	switch sh := Shape(strings.ToLower(strings.TrimSpace(s))); sh {
	case "":
		return ShapeFlat, nil
	case ShapeFlat, ShapeNested:
		return sh, nil
	default:
		return "", fmt.Errorf("unknown response shape %q, expected %q or %q", s, ShapeFlat, ShapeNested)
	}
}

// FlatItem is an item encoded as a single object of field values.
type FlatItem struct {
	ID     string
	Fields []cms.Field
}

// MarshalJSON encodes the item as {"id": ..., "<key>": value, ...}, following field order.
// When a key is repeated, the last value wins at the position of the first one.
// A field keyed "id" never replaces the item identifier.
func (it FlatItem) MarshalJSON() ([]byte, error) {
	var keys []string
	values := make(map[string]any, len(it.Fields))
	for _, f := range it.Fields {
		if f.Key == "id" {
			continue
		}
		if _, ok := values[f.Key]; !ok {
			keys = append(keys, f.Key)
		}
		values[f.Key] = f.Value
	}

	var buf bytes.Buffer
	buf.WriteString(`{"id":`)
	if err := writeJSON(&buf, it.ID); err != nil {
		return nil, err
	}
	for _, k := range keys {
		buf.WriteByte(',')
		if err := writeJSON(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, values[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// Render returns items laid out with the given shape, ready to be JSON encoded.
func Render(items []cms.Item, shape Shape) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		if shape == ShapeNested {
			if item.Fields == nil {
				item.Fields = []cms.Field{}
			}
			out = append(out, item)
			continue
		}
		out = append(out, FlatItem{ID: item.ID, Fields: item.Fields})
	}
	return out
}
