// Package cms implements a read-only client of the CMS integration API.
// It fetches the items of a model across every page, the model schema and the project assets.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/reearth/cms-items-api/internal/constants"
	"github.com/ubuntu/decorate"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrFetchFailed is returned when a CMS request fails, either due to a network error or a non-2xx status code.
	ErrFetchFailed = errors.New("CMS fetch failed")
	// ErrEmptyBaseURL is returned when the client is created without a base URL.
	ErrEmptyBaseURL = errors.New("CMS base URL cannot be empty")
)

// Scope identifies the CMS resources a request works on.
// WorkspaceID is optional. When set, every path is prefixed by the workspace and project.
type Scope struct {
	WorkspaceID string
	ProjectID   string
	ModelID     string
}

// Client is a CMS integration API client.
type Client struct {
	baseURL         *url.URL
	token           string
	httpClient      *http.Client
	pageSize        int
	pageConcurrency int

	log *slog.Logger
}

type options struct {
	httpClient      *http.Client
	pageSize        int
	pageConcurrency int
	logger          *slog.Logger
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client used to reach the CMS.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithPageConcurrency sets the maximum number of item pages requested at the same time.
// Values lower than 1 are ignored.
func WithPageConcurrency(n int) Options {
	return func(o *options) {
		if n > 0 {
			o.pageConcurrency = n
		}
	}
}

// WithLogger sets the logger of the client.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a client for the CMS at baseURL, authenticating with token.
func New(baseURL, token string, args ...Options) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrEmptyBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CMS base URL %s: %v", baseURL, err)
	}

	opts := options{
		httpClient:      &http.Client{Timeout: constants.DefaultCMSTimeout},
		pageSize:        constants.PageSize,
		pageConcurrency: constants.DefaultPageConcurrency,
		logger:          slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		baseURL:         u,
		token:           token,
		httpClient:      opts.httpClient,
		pageSize:        opts.pageSize,
		pageConcurrency: opts.pageConcurrency,
		log:             opts.logger,
	}, nil
}

// GetItems returns every item of the scoped model.
//
// The first page is requested to learn the total count, then the remaining pages are fetched
// concurrently, at most pageConcurrency at a time. Items are returned in ascending page order.
// A failure on any page fails the whole call: partial results are never returned.
func (c *Client) GetItems(ctx context.Context, s Scope) (resp ItemsResponse, err error) {
	defer decorate.OnError(&err, "could not fetch items of model %q", s.ModelID)

	first, err := c.getItemsPage(ctx, s, 1)
	if err != nil {
		return ItemsResponse{}, err
	}
	if first.TotalCount == nil {
		// Without a total count, there is no way to know about further pages.
		return first, nil
	}

	pages := pageCount(*first.TotalCount, c.pageSize)
	if pages <= 1 {
		return first, nil
	}

	rest := make([][]Item, pages-1)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.pageConcurrency)
	for page := 2; page <= pages; page++ {
		g.Go(func() error {
			r, err := c.getItemsPage(gCtx, s, page)
			if err != nil {
				return err
			}
			rest[page-2] = r.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ItemsResponse{}, err
	}

	items := first.Items
	for _, pageItems := range rest {
		items = append(items, pageItems...)
	}

	if len(items) != *first.TotalCount {
		c.log.Warn("Collected item count differs from CMS total count", "model", s.ModelID, "items", len(items), "total", *first.TotalCount)
	}

	return ItemsResponse{Items: items, TotalCount: first.TotalCount}, nil
}

func (c *Client) getItemsPage(ctx context.Context, s Scope, page int) (ItemsResponse, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(c.pageSize))

	var r ItemsResponse
	if err := c.getJSON(ctx, c.modelPath(s, "items"), q, &r); err != nil {
		return ItemsResponse{}, fmt.Errorf("page %d: %w", page, err)
	}
	return r, nil
}

// GetModel returns the scoped model, including its schema.
func (c *Client) GetModel(ctx context.Context, s Scope) (m Model, err error) {
	defer decorate.OnError(&err, "could not fetch model %q", s.ModelID)

	if err := c.getJSON(ctx, c.modelPath(s), nil, &m); err != nil {
		return Model{}, err
	}
	return m, nil
}

// GetAssets returns the assets of the scoped project.
// Assets are not paginated: the whole list is returned by a single request.
func (c *Client) GetAssets(ctx context.Context, s Scope) (resp AssetsResponse, err error) {
	defer decorate.OnError(&err, "could not fetch assets of project %q", s.ProjectID)

	if err := c.getJSON(ctx, append(c.projectPath(s), "assets"), nil, &resp); err != nil {
		return AssetsResponse{}, err
	}
	return resp, nil
}

// projectPath returns the escaped path segments of the scoped project.
func (c *Client) projectPath(s Scope) []string {
	p := []string{"projects", url.PathEscape(s.ProjectID)}
	if s.WorkspaceID != "" {
		p = append([]string{url.PathEscape(s.WorkspaceID)}, p...)
	}
	return p
}

// modelPath returns the escaped path segments of the scoped model followed by extra.
func (c *Client) modelPath(s Scope, extra ...string) []string {
	var p []string
	if s.WorkspaceID != "" {
		p = c.projectPath(s)
	}
	p = append(p, "models", url.PathEscape(s.ModelID))
	return append(p, extra...)
}

func (c *Client) getJSON(ctx context.Context, segments []string, q url.Values, out any) error {
	u := c.baseURL.JoinPath(segments...)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	endpoint := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("Requesting CMS", "url", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrFetchFailed, fmt.Errorf("failed to send HTTP request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Join(ErrFetchFailed, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, endpoint))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Join(ErrFetchFailed, fmt.Errorf("failed to decode response from %s: %v", endpoint, err))
	}
	return nil
}

// pageCount returns the number of pages of size pageSize needed to hold total items.
func pageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
