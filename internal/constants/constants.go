// Package constants is responsible for defining the constants used in the application.
package constants

import (
	"log/slog"
	"time"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// ServiceCmdName is the name of the HTTP service command.
	ServiceCmdName = "cms-items-service"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn
)

// CMS access constants.
const (
	// PageSize is the number of items requested per page from the CMS items endpoint.
	PageSize = 100

	// DefaultPageConcurrency is the default number of item pages fetched at the same time.
	DefaultPageConcurrency = 4

	// DefaultCMSTimeout is the default timeout of a single request to the CMS.
	DefaultCMSTimeout = 30 * time.Second

	// AssetFieldType is the schema type tag of asset fields.
	AssetFieldType = "asset"
)

// Environment variables read by the request pipeline.
const (
	EnvCMSBaseURL     = "REEARTH_CMS_INTEGRATION_API_BASE_URL"
	EnvCMSAccessToken = "REEARTH_CMS_INTEGRATION_API_ACCESS_TOKEN"
	EnvModelID        = "REEARTH_CMS_MODEL_ID"
	EnvProjectID      = "REEARTH_CMS_PROJECT_ID"
	EnvWorkspaceID    = "REEARTH_CMS_WORKSPACE_ID"
	EnvAPISecretKey   = "API_SECRET_KEY"
	EnvCORSOrigin     = "CORS_ORIGIN"
	EnvResponseFields = "RESPONSE_FIELDS"
	EnvResponseShape  = "RESPONSE_SHAPE"
	EnvFilters        = "FILTERS"
	EnvFilterMode     = "FILTER_MODE"
)
