package testutils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/reearth/cms-items-api/internal/cms"
)

// CMSContent is the content served by a fake CMS.
type CMSContent struct {
	// Token is the expected bearer token. Empty accepts any token.
	Token string

	Items []cms.Item
	// TotalCount overrides the reported total count. By default, it is len(Items).
	TotalCount *int
	// OmitTotalCount removes the total count from items responses.
	OmitTotalCount bool

	Model  cms.Model
	Assets []cms.Asset

	// FailItemsPage makes the given items page fail with an internal server error. 0 disables it.
	FailItemsPage int
	FailModel     bool
	FailAssets    bool

	// PageDelay delays the answer of an items page, to mix the completion order of concurrent requests.
	PageDelay func(page int) time.Duration
}

// CMSServer is a fake CMS integration API, recording the requests it receives.
type CMSServer struct {
	*httptest.Server

	content CMSContent

	mu        sync.Mutex
	paths     []string
	pages     []int
	maxActive int
	active    int
}

// NewCMSServer starts a fake CMS serving content, closed at the end of the test.
//
// Both the workspace scoped routes and the legacy unscoped routes are served.
func NewCMSServer(t *testing.T, content CMSContent) *CMSServer {
	t.Helper()

	s := &CMSServer{content: content}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /models/{model}/items", s.items)
	mux.HandleFunc("GET /models/{model}", s.model)
	mux.HandleFunc("GET /projects/{project}/assets", s.assets)
	mux.HandleFunc("GET /{workspace}/projects/{project}/models/{model}/items", s.items)
	mux.HandleFunc("GET /{workspace}/projects/{project}/models/{model}", s.model)
	mux.HandleFunc("GET /{workspace}/projects/{project}/assets", s.assets)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)

	return s
}

// Paths returns the request paths received so far, in arrival order.
func (s *CMSServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.paths)
}

// Pages returns the items pages requested so far, sorted.
func (s *CMSServer) Pages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages := slices.Clone(s.pages)
	slices.Sort(pages)
	return pages
}

// MaxConcurrentPages returns the highest number of items pages served at the same time.
func (s *CMSServer) MaxConcurrentPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

func (s *CMSServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()

		if s.content.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.content.Token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *CMSServer) items(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		http.Error(w, "invalid page", http.StatusBadRequest)
		return
	}
	perPage, err := strconv.Atoi(r.URL.Query().Get("perPage"))
	if err != nil || perPage < 1 {
		http.Error(w, "invalid perPage", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.active++
	s.maxActive = max(s.maxActive, s.active)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if s.content.PageDelay != nil {
		time.Sleep(s.content.PageDelay(page))
	}

	if page == s.content.FailItemsPage {
		http.Error(w, "requested failure", http.StatusInternalServerError)
		return
	}

	start := min((page-1)*perPage, len(s.content.Items))
	end := min(start+perPage, len(s.content.Items))

	resp := cms.ItemsResponse{Items: s.content.Items[start:end]}
	if resp.Items == nil {
		resp.Items = []cms.Item{}
	}
	if !s.content.OmitTotalCount {
		total := len(s.content.Items)
		if s.content.TotalCount != nil {
			total = *s.content.TotalCount
		}
		resp.TotalCount = &total
	}
	writeJSON(w, resp)
}

func (s *CMSServer) model(w http.ResponseWriter, _ *http.Request) {
	if s.content.FailModel {
		http.Error(w, "requested failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.content.Model)
}

func (s *CMSServer) assets(w http.ResponseWriter, _ *http.Request) {
	if s.content.FailAssets {
		http.Error(w, "requested failure", http.StatusBadGateway)
		return
	}
	assets := s.content.Assets
	if assets == nil {
		assets = []cms.Asset{}
	}
	total := len(assets)
	writeJSON(w, cms.AssetsResponse{Items: assets, TotalCount: &total})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GenerateItems returns n items with a title field and a number field, in identifier order.
func GenerateItems(n int) []cms.Item {
	items := make([]cms.Item, 0, n)
	for i := range n {
		items = append(items, cms.Item{
			ID: "item_" + strconv.Itoa(i+1),
			Fields: []cms.Field{
				{Key: "title", Type: "text", Value: "Title " + strconv.Itoa(i+1)},
				{Key: "rank", Type: "integer", Value: i + 1},
			},
			CreatedAt: "2024-01-01T00:00:00Z",
		})
	}
	return items
}
