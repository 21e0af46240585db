// Package config loads the router's YAML configuration and applies an
// environment-variable overlay on top of it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/n9te9/federation-router/federation/operation"
)

// SubgraphFile is one statically-configured subgraph, used by the "file"
// supergraph source.
type SubgraphFile struct {
	Name  string   `yaml:"name"`
	Host  string   `yaml:"host"`
	Files []string `yaml:"schema_files"`
}

// SubgraphEndpoint is one statically-configured subgraph polled over HTTP,
// used by the "url" supergraph source. Endpoints is an ordered failover
// list: the first to answer wins.
type SubgraphEndpoint struct {
	Name      string     `yaml:"name"`
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Endpoint is one candidate address for a polled subgraph.
type Endpoint struct {
	URL                string `yaml:"url"`
	RequestTimeout     string `yaml:"request_timeout" default:"5s"`
	ConnectTimeout     string `yaml:"connect_timeout" default:"2s"`
	AcceptInvalidCerts bool   `yaml:"accept_invalid_certs" default:"false"`
	RetryAttempts      int    `yaml:"retry_attempts" default:"3"`
}

// SupergraphSetting selects and configures the supergraph source.
type SupergraphSetting struct {
	Source          string             `yaml:"source" default:"file"` // file | url | registration
	PollInterval    string             `yaml:"poll_interval" default:"30s"`
	Files           []SubgraphFile     `yaml:"files"`
	Endpoints       []SubgraphEndpoint `yaml:"endpoints"`
	RegistryAddr    string             `yaml:"registry_listen_addr" default:":8090"`
	RegistryEnabled bool               `yaml:"registry_enabled" default:"false"`
}

// LimitsSetting bounds the operation pipeline's complexity checks. A
// non-positive value disables the corresponding check.
type LimitsSetting struct {
	MaxDepth           int `yaml:"max_depth" default:"16"`
	MaxDirectives      int `yaml:"max_directives" default:"64"`
	MaxComplexity      int `yaml:"max_complexity" default:"10000"`
	MaxAliases         int `yaml:"max_aliases" default:"32"`
	MaxTokens          int `yaml:"max_tokens" default:"20000"`
	MaxRequestBodySize int `yaml:"max_request_body_size" default:"1048576"`
}

// Operation adapts LimitsSetting to the operation package's Limits type.
func (l LimitsSetting) Operation() operation.Limits {
	return operation.Limits{
		MaxDepth:           l.MaxDepth,
		MaxDirectives:      l.MaxDirectives,
		MaxAliases:         l.MaxAliases,
		MaxTokens:          l.MaxTokens,
		MaxRequestBodySize: l.MaxRequestBodySize,
	}
}

// JWTSetting configures the authorization claims pipeline.
type JWTSetting struct {
	Enabled   bool   `yaml:"enabled" default:"false"`
	JWKSURL   string `yaml:"jwks_url"`
	PublicKey string `yaml:"public_key"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// UnauthorizedSetting selects the authorization filter's behavior when a
// field fails its @authenticated/@requiresScopes check.
type UnauthorizedSetting struct {
	Mode string `yaml:"mode" default:"filter"` // filter | reject
}

// DirectivesSetting groups per-directive authorization behavior.
type DirectivesSetting struct {
	Unauthorized UnauthorizedSetting `yaml:"unauthorized"`
}

// AuthSetting is the authorization filter's configuration.
type AuthSetting struct {
	JWT        JWTSetting        `yaml:"jwt"`
	Directives DirectivesSetting `yaml:"directives"`
}

// Mode returns the configured authorization filter mode, defaulting to
// filter for an unrecognized or empty value.
func (a AuthSetting) Mode() operation.Mode {
	if a.Directives.Unauthorized.Mode == string(operation.ModeReject) {
		return operation.ModeReject
	}
	return operation.ModeFilter
}

// PersistedDocumentsSetting configures persisted-document lookup at the
// request orchestrator.
type PersistedDocumentsSetting struct {
	Enabled        bool   `yaml:"enabled" default:"false"`
	Spec           string `yaml:"spec" default:"apollo"` // identifies the documentId/doc_id/extensions.persistedQuery shape expected
	AllowArbitrary bool   `yaml:"allow_arbitrary" default:"true"`
}

// TracingSetting toggles OTLP trace export.
type TracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

// MetricsSetting selects the metrics exporter.
type MetricsSetting struct {
	Exporters []string `yaml:"exporters" default:"[prometheus]"`
}

// TelemetrySetting is the ambient observability configuration.
type TelemetrySetting struct {
	Tracing TracingSetting `yaml:"tracing"`
	Metrics MetricsSetting `yaml:"metrics"`
}

// CacheSetting bounds the plan cache.
type CacheSetting struct {
	MaxEntries int `yaml:"max_entries" default:"1024"`
}

// Config is the router's fully-resolved configuration.
type Config struct {
	Endpoint                    string            `yaml:"endpoint" default:"/graphql"`
	ServiceName                 string            `yaml:"service_name" default:"federation-router"`
	Port                        int               `yaml:"port" default:"8080"`
	TimeoutDuration             string            `yaml:"timeout_duration" default:"5s"`
	EnableHangOverRequestHeader bool              `yaml:"enable_hang_over_request_header" default:"true"`
	Supergraph                  SupergraphSetting `yaml:"supergraph"`
	Limits                      LimitsSetting     `yaml:"limits"`
	Auth                        AuthSetting       `yaml:"auth"`
	Opentelemetry               TelemetrySetting  `yaml:"opentelemetry"`
	Cache                       CacheSetting      `yaml:"cache"`
	PersistedDocuments          PersistedDocumentsSetting `yaml:"persisted_documents"`
}

// Timeout parses TimeoutDuration, defaulting to 5s on a malformed value.
func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.TimeoutDuration)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// PollIntervalDuration parses PollInterval, defaulting to 30s.
func (s *SupergraphSetting) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Load reads the YAML config at path and applies the process environment as
// an overlay: FOO__BAR_BAZ=v sets the equivalent of foo.bar_baz: v in YAML,
// matching field tags case-insensitively.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverlay(&cfg, os.Environ()); err != nil {
		return nil, fmt.Errorf("failed to apply environment overlay: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverlay re-marshals cfg to a generic map, applies each KEY=value
// pair whose KEY splits on "__" into a case-insensitive path of yaml tags,
// and unmarshals the result back into cfg.
func applyEnvOverlay(cfg *Config, environ []string) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.Contains(key, "__") {
			continue
		}
		path := strings.Split(strings.ToLower(key), "__")
		setPath(doc, path, parseScalar(value))
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(out, cfg)
}

// setPath navigates/creates nested maps along path and assigns value at the
// final key.
func setPath(doc map[string]any, path []string, value any) {
	node := doc
	for _, key := range path[:len(path)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[key] = child
		}
		node = child
	}
	node[path[len(path)-1]] = value
}

// parseScalar converts an environment variable's string value into a bool,
// int, or string, in that preference order.
func parseScalar(value string) any {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return value
}
