package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/GoCodeAlone/modular"
	"github.com/GoCodeAlone/modular-segment/internal/logging"
	"github.com/GoCodeAlone/modular-segment/internal/playground"
	"github.com/GoCodeAlone/modular-segment/internal/playground/server"
	"github.com/GoCodeAlone/modular-segment/modules/analytics"
	"github.com/GoCodeAlone/modular-segment/sdk"
	"github.com/GoCodeAlone/modular/feeders"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// ServeOptions holds the flags of the serve command.
type ServeOptions struct {
	ConfigFile string
	EnvFile    string
	Address    string
	Debug      bool
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the playground HTTP server",
		Long: `Run the analytics module with the PII hasher, currency injector and live feed
extensions, and serve the playground API until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := BuildApplication(opts)
			if err != nil {
				return err
			}
			return app.Run()
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "config.yaml", "YAML configuration file")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", ".env", "Dotenv file loaded before configuration")
	cmd.Flags().StringVar(&opts.Address, "addr", "", "Listen address, overrides the configuration")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Console logging at debug level")

	return cmd
}

// BuildApplication loads the environment, sets up feeders and registers the
// playground modules. The returned application has not been initialized.
func BuildApplication(opts *ServeOptions) (*modular.ObservableApplication, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	modular.ConfigFeeders = configFeeders(opts.ConfigFile)

	logger := logging.NewDefault(opts.Debug)
	app := modular.NewObservableApplication(modular.NewStdConfigProvider(&struct{}{}), logger)

	if opts.Debug {
		if err := app.RegisterObserver(eventLogger(logger), analytics.EventTypes()...); err != nil {
			return nil, fmt.Errorf("failed to register event logger: %w", err)
		}
	}

	var serverOpts []server.ModuleOption
	if opts.Address != "" {
		serverOpts = append(serverOpts, server.WithAddress(opts.Address))
	}
	if _, err := playground.Register(app, playground.Options{
		SDK:    []sdk.Option{sdk.WithLogger(logger)},
		Server: serverOpts,
	}); err != nil {
		return nil, err
	}
	return app, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// configFeeders reads the YAML file when present, then the environment.
func configFeeders(path string) []modular.Feeder {
	var out []modular.Feeder
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			out = append(out, feeders.NewYamlFeeder(path))
		}
	}
	return append(out, feeders.NewEnvFeeder())
}

func eventLogger(logger modular.Logger) modular.Observer {
	return modular.NewFunctionalObserver("playground-event-logger", func(ctx context.Context, event cloudevents.Event) error {
		var data map[string]any
		_ = event.DataAs(&data)
		logger.Debug("Analytics event", "type", event.Type(), "source", event.Source(), "data", data)
		return nil
	})
}
