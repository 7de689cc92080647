package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults used when settings leave a field empty.
const (
	DefaultCDNURL          = "https://cdn.segment.com"
	DefaultAPIHost         = "api.segment.io/v1"
	DefaultCallbackTimeout = 300 * time.Millisecond
	DefaultFlushAt         = 20
	DefaultFlushInterval   = 10 * time.Second
)

// SegmentIntegration is the integration name of the built-in delivery
// destination.
const SegmentIntegration = "Segment.io"

// Settings identify the source and where its settings and events go.
type Settings struct {
	WriteKey string
	CDNURL   string
	APIHost  string
	// CDNSettings skips the settings fetch when set.
	CDNSettings *CDNSettings
}

// InitOptions tune how the SDK behaves once loaded.
type InitOptions struct {
	Disable                  bool
	Obfuscate                bool
	Integrations             map[string]any
	DisableAutoISOConversion bool
	FlushAt                  int
	FlushInterval            time.Duration
}

// CDNSettings is the subset of the project settings document the SDK uses.
type CDNSettings struct {
	Integrations       map[string]map[string]any `json:"integrations" yaml:"integrations"`
	Plan               map[string]any            `json:"plan,omitempty" yaml:"plan,omitempty"`
	MiddlewareSettings map[string]any            `json:"middlewareSettings,omitempty" yaml:"middlewareSettings,omitempty"`
	Edge               map[string]any            `json:"edge,omitempty" yaml:"edge,omitempty"`
}

// APIHost returns the delivery host advertised by the Segment.io integration.
func (s *CDNSettings) APIHost() string {
	if s == nil {
		return ""
	}
	seg, ok := s.Integrations[SegmentIntegration]
	if !ok {
		return ""
	}
	host, _ := seg["apiHost"].(string)
	return host
}

// SettingsURL builds the project settings URL for writeKey.
func SettingsURL(cdnURL, writeKey string) string {
	if cdnURL == "" {
		cdnURL = DefaultCDNURL
	}
	return strings.TrimRight(cdnURL, "/") + "/v1/projects/" + url.PathEscape(writeKey) + "/settings"
}

// FetchSettings downloads the project settings for writeKey from the CDN.
func FetchSettings(ctx context.Context, client *http.Client, cdnURL, writeKey string) (*CDNSettings, error) {
	if writeKey == "" {
		return nil, ErrMissingWriteKey
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, SettingsURL(cdnURL, writeKey), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettingsFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettingsFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSettingsFetch, resp.StatusCode)
	}

	var settings CDNSettings
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrSettingsFetch, err)
	}
	return &settings, nil
}
