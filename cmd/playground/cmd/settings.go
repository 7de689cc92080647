package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/GoCodeAlone/modular-segment/sdk"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewSettingsCommand creates the settings command, which prints the
// project settings the SDK would load for a write key.
func NewSettingsCommand() *cobra.Command {
	var (
		writeKey string
		cdnURL   string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Fetch project settings from the CDN",
		Long:  `Fetch the project settings for a write key and print them as YAML.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if writeKey == "" {
				return sdk.ErrMissingWriteKey
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			settings, err := sdk.FetchSettings(ctx, &http.Client{Timeout: timeout}, cdnURL, writeKey)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("settings fetch timed out after %s: %w", timeout, err)
				}
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return fmt.Errorf("failed to encode settings: %w", err)
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringVar(&writeKey, "write-key", "", "Source write key")
	cmd.Flags().StringVar(&cdnURL, "cdn-url", sdk.DefaultCDNURL, "Settings CDN base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	_ = cmd.MarkFlagRequired("write-key")

	return cmd
}
