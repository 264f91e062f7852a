package cms

// Field is a single value of an item, as returned by the CMS.
//
// Value is decoded with json.Number for numbers, so numeric literals keep their original form.
type Field struct {
	ID    string `json:"id,omitempty"`
	Key   string `json:"key"`
	Type  string `json:"type,omitempty"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value"`
}

// Item is one record of a model.
type Item struct {
	ID        string  `json:"id"`
	Fields    []Field `json:"fields"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// ItemsResponse is the body of the items endpoint. A merged response holds every page.
type ItemsResponse struct {
	Items      []Item `json:"items"`
	TotalCount *int   `json:"totalCount,omitempty"`
}

// SchemaField is the definition of one field of a model.
type SchemaField struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Multiple bool   `json:"multiple"`
	Required bool   `json:"required"`
}

// Schema is the field list of a model.
type Schema struct {
	ID        string        `json:"id"`
	ProjectID string        `json:"projectId"`
	Fields    []SchemaField `json:"fields"`
	CreatedAt string        `json:"createdAt"`
}

// Model is the content type definition returned by the model endpoint.
type Model struct {
	ID           string `json:"id"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	ProjectID    string `json:"projectId"`
	SchemaID     string `json:"schemaId"`
	Schema       Schema `json:"schema"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	LastModified string `json:"lastModified"`
}

// Asset is a stored media object.
type Asset struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	TotalSize   int64  `json:"totalSize,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// AssetsResponse is the body of the assets endpoint.
type AssetsResponse struct {
	Items      []Asset `json:"items"`
	TotalCount *int    `json:"totalCount,omitempty"`
}

// AssetIndex maps asset identifiers to their URL.
type AssetIndex map[string]string

// NewAssetIndex builds the identifier to URL lookup of the given assets.
// The first asset wins when an identifier is listed twice.
func NewAssetIndex(assets []Asset) AssetIndex {
	idx := make(AssetIndex, len(assets))
	for _, a := range assets {
		if _, ok := idx[a.ID]; ok {
			continue
		}
		idx[a.ID] = a.URL
	}
	return idx
}

// URL returns the URL of the asset with the given identifier.
// Assets without a URL are reported as not found.
func (idx AssetIndex) URL(id string) (string, bool) {
	u, ok := idx[id]
	if !ok || u == "" {
		return "", false
	}
	return u, true
}
