// Package daemon provides the items HTTP service daemon.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/reearth/cms-items-api/internal/cli"
	"github.com/reearth/cms-items-api/internal/config"
	"github.com/reearth/cms-items-api/internal/constants"
	"github.com/reearth/cms-items-api/internal/webservice"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server

	ready chan struct{}
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int  `mapstructure:"verbose" yaml:"verbose,omitempty"`
	JSONLogs  bool `mapstructure:"json-logs" yaml:"json-logs,omitempty"`

	Daemon webservice.StaticConfig `mapstructure:",squash" yaml:",inline"`
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:   constants.ServiceCmdName,
		Short: "Re:Earth CMS items service",
		Long: `Re:Earth CMS items service, serving the items of a CMS model as enriched, filtered JSON.

The CMS access and the response settings are read from the process environment, optionally
overlaid by the settings file.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.ServiceCmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			slog.Info("Got app config", "config", a.config)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := webservice.StaticConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxHeaderBytes: 1 << 13, // 8 KB

		Handler: webservice.HandlerConfig{
			RequestTimeout:  55 * time.Second,
			CMSTimeout:      constants.DefaultCMSTimeout,
			PageConcurrency: constants.DefaultPageConcurrency,
			RateBurst:       10,
		},

		ListenPort:  8080,
		MetricsPort: 2112,
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "write logs as JSON records")

	cmd.Flags().StringVar(&app.config.Daemon.SettingsPath, "settings", "", "path to a JSON, YAML or TOML file overlaid by the environment settings")
	cmd.Flags().BoolVar(&app.config.Daemon.WatchSettings, "watch-settings", false, "reload the settings file when it changes")

	cmd.Flags().DurationVar(&app.config.Daemon.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&app.config.Daemon.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().IntVar(&app.config.Daemon.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")

	cmd.Flags().DurationVar(&app.config.Daemon.Handler.RequestTimeout, "request-timeout", defaultConf.Handler.RequestTimeout, "timeout of a whole items request")
	cmd.Flags().DurationVar(&app.config.Daemon.Handler.CMSTimeout, "cms-timeout", defaultConf.Handler.CMSTimeout, "timeout of a single CMS request")
	cmd.Flags().IntVar(&app.config.Daemon.Handler.PageConcurrency, "page-concurrency", defaultConf.Handler.PageConcurrency, "maximum number of items pages fetched at the same time")
	cmd.Flags().Float64Var(&app.config.Daemon.Handler.RateLimit, "rate-limit", defaultConf.Handler.RateLimit, "requests per second allowed to each client IP, 0 to disable")
	cmd.Flags().IntVar(&app.config.Daemon.Handler.RateBurst, "rate-burst", defaultConf.Handler.RateBurst, "request burst allowed to each client IP")

	cmd.Flags().StringVar(&app.config.Daemon.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&app.config.Daemon.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")
	cmd.Flags().StringVar(&app.config.Daemon.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&app.config.Daemon.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	if err := cmd.MarkFlagFilename("settings", "json", "yaml", "yml", "toml"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark settings flag as filename: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready.
func (a *App) WaitReady() {
	<-a.ready
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	dConf := a.config.Daemon
	sm := config.New(dConf.SettingsPath)
	a.daemon, err = webservice.New(context.Background(), sm, dConf)
	close(a.ready)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}
