// Package config provides the request settings of the service.
//
// Settings come from the process environment and from an optional settings file, which can be
// watched for changes. Requests read them through immutable snapshots.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/reearth/cms-items-api/internal/cms"
	"github.com/reearth/cms-items-api/internal/constants"
	"github.com/reearth/cms-items-api/internal/pipeline"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	// ErrModelNotConfigured is returned when no model identifier is configured.
	ErrModelNotConfigured = errors.New("model ID not configured")
	// ErrProjectNotConfigured is returned when no project identifier is configured.
	ErrProjectNotConfigured = errors.New("project ID not configured")
	// ErrCMSNotConfigured is returned when no CMS base URL is configured.
	ErrCMSNotConfigured = errors.New("CMS base URL not configured")
)

// Conf holds the request settings.
type Conf struct {
	CMSBaseURL     string `mapstructure:"cms_base_url"`
	CMSAccessToken string `mapstructure:"cms_access_token"`
	ModelID        string `mapstructure:"model_id"`
	ProjectID      string `mapstructure:"project_id"`
	WorkspaceID    string `mapstructure:"workspace_id"`

	APISecretKey string `mapstructure:"api_secret_key"`
	CORSOrigin   string `mapstructure:"cors_origin"`

	ResponseFields []string `mapstructure:"response_fields"`
	ResponseShape  string   `mapstructure:"response_shape"`
	Filters        string   `mapstructure:"filters"`
	FilterMode     string   `mapstructure:"filter_mode"`
}

// envBindings maps setting keys to the environment variable they are read from.
var envBindings = map[string]string{
	"cms_base_url":     constants.EnvCMSBaseURL,
	"cms_access_token": constants.EnvCMSAccessToken,
	"model_id":         constants.EnvModelID,
	"project_id":       constants.EnvProjectID,
	"workspace_id":     constants.EnvWorkspaceID,
	"api_secret_key":   constants.EnvAPISecretKey,
	"cors_origin":      constants.EnvCORSOrigin,
	"response_fields":  constants.EnvResponseFields,
	"response_shape":   constants.EnvResponseShape,
	"filters":          constants.EnvFilters,
	"filter_mode":      constants.EnvFilterMode,
}

// SettingError is a setting holding an unusable value.
type SettingError struct {
	// Setting is the environment variable name of the setting.
	Setting string
	Err     error
}

func (e SettingError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Setting, e.Err)
}

func (e SettingError) Unwrap() error {
	return e.Err
}

// Validate checks that the settings needed to reach the CMS are present.
func (c Conf) Validate() error {
	if c.ModelID == "" {
		return ErrModelNotConfigured
	}
	if c.ProjectID == "" {
		return ErrProjectNotConfigured
	}
	if c.CMSBaseURL == "" {
		return ErrCMSNotConfigured
	}
	return nil
}

// Scope returns the CMS scope of the settings.
func (c Conf) Scope() cms.Scope {
	return cms.Scope{
		WorkspaceID: c.WorkspaceID,
		ProjectID:   c.ProjectID,
		ModelID:     c.ModelID,
	}
}

// Pipeline returns the pipeline settings.
// Invalid values are reported as SettingError.
func (c Conf) Pipeline() (pipeline.Settings, error) {
	shape, err := pipeline.ParseShape(c.ResponseShape)
	if err != nil {
		return pipeline.Settings{}, SettingError{Setting: constants.EnvResponseShape, Err: err}
	}
	mode, err := pipeline.ParseFilterMode(c.FilterMode)
	if err != nil {
		return pipeline.Settings{}, SettingError{Setting: constants.EnvFilterMode, Err: err}
	}
	filter, err := pipeline.ParseFilter(c.Filters, mode)
	if err != nil {
		return pipeline.Settings{}, SettingError{Setting: constants.EnvFilters, Err: err}
	}

	return pipeline.Settings{
		Scope:      c.Scope(),
		Projection: pipeline.NewProjection(c.ResponseFields),
		Filter:     filter,
		Shape:      shape,
	}, nil
}

// LogValue implements slog.LogValuer, hiding secrets.
func (c Conf) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("cms_base_url", c.CMSBaseURL),
		slog.Bool("cms_access_token_set", c.CMSAccessToken != ""),
		slog.String("model_id", c.ModelID),
		slog.String("project_id", c.ProjectID),
		slog.String("workspace_id", c.WorkspaceID),
		slog.Bool("api_secret_key_set", c.APISecretKey != ""),
		slog.String("cors_origin", c.CORSOrigin),
		slog.Any("response_fields", c.ResponseFields),
		slog.String("response_shape", c.ResponseShape),
		slog.String("filters", c.Filters),
		slog.String("filter_mode", c.FilterMode),
	)
}

func (c Conf) clone() Conf {
	c.ResponseFields = slices.Clone(c.ResponseFields)
	return c
}

// Manager loads the settings and keeps the current snapshot.
type Manager struct {
	conf Conf
	lock sync.RWMutex

	// path is the optional settings file. Its values are overridden by the environment.
	path string

	log *slog.Logger
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// WithLogger sets the logger of the Manager.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// New returns a Manager reading settings from the environment, and from the settings file at path
// if path is not empty.
func New(path string, args ...Options) *Manager {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return &Manager{
		path: path,
		log:  opts.logger,
	}
}

// Load reads the settings and replaces the current snapshot.
// The current snapshot is kept if the settings cannot be read.
func (m *Manager) Load() error {
	vip := viper.New()
	for key, env := range envBindings {
		if err := vip.BindEnv(key, env); err != nil {
			return fmt.Errorf("could not bind environment variable %s: %v", env, err)
		}
	}

	if m.path != "" {
		values, err := readFile(m.path)
		if err != nil {
			return err
		}
		if err := vip.MergeConfigMap(values); err != nil {
			return fmt.Errorf("could not merge settings file %s: %v", m.path, err)
		}
	}

	var conf Conf
	if err := vip.Unmarshal(&conf, viper.DecodeHook(decodeHook())); err != nil {
		return fmt.Errorf("could not decode settings: %v", err)
	}

	m.lock.Lock()
	m.conf = conf
	m.lock.Unlock()

	m.log.Info("Settings loaded", "settings", conf)
	return nil
}

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() Conf {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.conf.clone()
}

// Watch starts watching the settings file for changes, reloading the settings on each change.
//
// It returns two channels: one for changes which result in a successful load and another for
// unrecoverable watcher errors. Both are closed once ctx is done.
func (m *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	if m.path == "" {
		return nil, nil, errors.New("no settings file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}

	m.log.Info("Watching settings directory", "dir", dir)
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				m.log.Info("Settings watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- errors.New("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != m.path {
					continue
				}

				m.log.Debug("Settings file changed. Reloading...")
				if err := m.Load(); err != nil {
					m.log.Warn("Error reloading settings, keeping previous ones", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- errors.New("watcher errors channel closed unexpectedly")
					return
				}
				m.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// readFile returns the values of the settings file at path, decoded according to its extension.
// Unknown keys are rejected.
func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read settings file: %w", err)
	}

	values := make(map[string]any)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &values)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &values)
	case ".toml":
		err = toml.Unmarshal(data, &values)
	default:
		return nil, fmt.Errorf("unsupported settings file format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("could not parse settings file %s: %v", path, err)
	}

	var conf Conf
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       decodeHook(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &conf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %v", err)
	}
	if err := decoder.Decode(values); err != nil {
		return nil, fmt.Errorf("settings file %s does not match expected settings: %v", path, err)
	}

	return values, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
	)
}
