// Package handlers implements the HTTP endpoints of the service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/reearth/cms-items-api/internal/cms"
	"github.com/reearth/cms-items-api/internal/config"
	"github.com/reearth/cms-items-api/internal/constants"
	"github.com/reearth/cms-items-api/internal/pipeline"
	"github.com/reearth/cms-items-api/internal/webservice/metrics"
)

// SettingsProvider gives the request settings.
type SettingsProvider interface {
	Snapshot() config.Conf
}

// Items serves the enriched items of the configured model.
type Items struct {
	settings        SettingsProvider
	httpClient      *http.Client
	pageConcurrency int

	log *slog.Logger
}

type options struct {
	httpClient      *http.Client
	pageConcurrency int
	logger          *slog.Logger
}

// Options represents an optional function to override Items default values.
type Options func(*options)

// WithHTTPClient sets the HTTP client used to reach the CMS.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithPageConcurrency sets the maximum number of item pages requested at the same time.
func WithPageConcurrency(n int) Options {
	return func(o *options) {
		o.pageConcurrency = n
	}
}

// WithLogger sets the logger of the handler.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// NewItems returns the items handler, reading its settings from sp on each request.
func NewItems(sp SettingsProvider, args ...Options) *Items {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Items{
		settings:        sp,
		httpClient:      opts.httpClient,
		pageConcurrency: opts.pageConcurrency,
		log:             opts.logger,
	}
}

func (h *Items) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ApplyLabels(r)
	reqID := uuid.New().String()
	log := h.log.With("req_id", reqID)

	if r.Method != http.MethodGet {
		log.Info("Method not allowed", "method", r.Method)
		WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method "+r.Method+" not allowed")
		return
	}

	conf := h.settings.Snapshot()

	if !Authorized(r, conf.APISecretKey) {
		log.Info("Unauthorized request", "remote", r.RemoteAddr)
		WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or missing authentication token")
		return
	}

	if err := conf.Validate(); err != nil {
		log.Error("Invalid configuration", "err", err)
		WriteError(w, http.StatusInternalServerError, CodeConfigurationError, configurationMessage(err))
		return
	}

	settings, err := conf.Pipeline()
	if err != nil {
		log.Error("Invalid pipeline configuration", "err", err)
		WriteError(w, http.StatusInternalServerError, CodeConfigurationError, "Invalid configuration", settingDetails(err)...)
		return
	}

	clientOpts := []cms.Options{cms.WithLogger(log), cms.WithPageConcurrency(h.pageConcurrency)}
	if h.httpClient != nil {
		clientOpts = append(clientOpts, cms.WithHTTPClient(h.httpClient))
	}
	client, err := cms.New(conf.CMSBaseURL, conf.CMSAccessToken, clientOpts...)
	if err != nil {
		log.Error("Could not create CMS client", "err", err)
		WriteError(w, http.StatusInternalServerError, CodeConfigurationError, "Invalid configuration",
			ErrorDetail{Field: constants.EnvCMSBaseURL, Message: err.Error()})
		return
	}

	res, err := pipeline.NewRunner(client, log).Run(r.Context(), settings)
	if errors.Is(err, cms.ErrFetchFailed) {
		log.Error("Error fetching items", "err", err)
		WriteError(w, http.StatusInternalServerError, CodeFetchFailed, "Failed to fetch items from CMS")
		return
	} else if err != nil {
		log.Error("Unexpected error", "err", err)
		WriteInternalError(w)
		return
	}

	log.Info("Items served", "items", len(res.Items))
	WriteSuccess(w, http.StatusOK, res)
}

// configurationMessage returns the public message of a missing setting.
func configurationMessage(err error) string {
	switch {
	case errors.Is(err, config.ErrModelNotConfigured):
		return "Model ID not configured"
	case errors.Is(err, config.ErrProjectNotConfigured):
		return "Project ID not configured"
	case errors.Is(err, config.ErrCMSNotConfigured):
		return "CMS base URL not configured"
	default:
		return "Invalid configuration"
	}
}

// settingDetails lists the invalid settings of err.
// Each malformed filter condition gets its own detail.
func settingDetails(err error) []ErrorDetail {
	var settingErr config.SettingError
	if !errors.As(err, &settingErr) {
		return nil
	}

	var details []ErrorDetail
	if joined, ok := settingErr.Err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var condErr pipeline.ConditionError
			if errors.As(e, &condErr) {
				details = append(details, ErrorDetail{Field: settingErr.Setting, Message: condErr.Error()})
			}
		}
	}
	if len(details) == 0 {
		details = append(details, ErrorDetail{Field: settingErr.Setting, Message: settingErr.Err.Error()})
	}
	return details
}
