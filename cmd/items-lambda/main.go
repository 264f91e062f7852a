// Package main is the entry point of the items service deployed as an AWS Lambda function
// behind API Gateway.
//
// Settings are read from the function environment. CMS_ITEMS_SETTINGS optionally points to a
// settings file bundled with the function.
package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/reearth/cms-items-api/internal/cli"
	"github.com/reearth/cms-items-api/internal/config"
	"github.com/reearth/cms-items-api/internal/constants"
	"github.com/reearth/cms-items-api/internal/webservice"
)

const (
	envSettingsPath = "CMS_ITEMS_SETTINGS"
	envVerbosity    = "CMS_ITEMS_VERBOSITY"
)

func main() {
	verbosity, _ := strconv.Atoi(os.Getenv(envVerbosity))
	slog.SetDefault(cli.NewJSONLogger(os.Stdout, verbosity))

	h, err := newHandler(os.Getenv(envSettingsPath))
	if err != nil {
		slog.Error("Could not start the function", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.ProxyWithContext)
}

// newHandler returns the API Gateway proxy adapter serving the items endpoint, with the settings
// loaded once from the environment and the optional settings file.
func newHandler(settingsPath string) (*httpadapter.HandlerAdapter, error) {
	sm := config.New(settingsPath)
	if err := sm.Load(); err != nil {
		return nil, err
	}

	// No registry: a function instance has no scrape endpoint to expose metrics on.
	h := webservice.NewHandler(sm, nil, webservice.HandlerConfig{
		CMSTimeout:      constants.DefaultCMSTimeout,
		PageConcurrency: constants.DefaultPageConcurrency,
	})
	return httpadapter.New(h), nil
}
