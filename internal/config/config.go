// Package config loads graphcache.yaml, the file that describes how entities
// are keyed, which schema to consult and where the upstream GraphQL server lives.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cache "github.com/hanpama/graphcache/internal/cache"
	"github.com/hanpama/graphcache/internal/keys"
	"github.com/hanpama/graphcache/internal/schema"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config is the root of graphcache.yaml.
type Config struct {
	// Schema is a path to GraphQL SDL, relative to the config file. Optional.
	Schema string `yaml:"schema,omitempty"`

	// Keys lists the fields that make up the entity key of a type. An empty
	// list marks the type as always embedded in its parent.
	Keys map[string][]string `yaml:"keys,omitempty"`

	// Optimistic maps mutation fields to the result written while the
	// mutation is in flight. String values "$name" are replaced by the
	// field argument called name.
	Optimistic map[string]any `yaml:"optimistic,omitempty"`

	Upstream *UpstreamConfig `yaml:"upstream,omitempty"`
	Server   *ServerConfig   `yaml:"server,omitempty"`
	OTel     *OTelConfig     `yaml:"otel,omitempty"`

	// dir is the directory the config was loaded from.
	dir string
}

// UpstreamConfig points at the GraphQL server behind the proxy.
type UpstreamConfig struct {
	URL string `yaml:"url"`
	// Timeout per upstream request, as a Go duration string. Default: 10s
	Timeout string `yaml:"timeout,omitempty"`
	// Headers are forwarded from the incoming request. Case-insensitive.
	Headers []string `yaml:"headers,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string   `yaml:"addr,omitempty"`
	Pretty       bool     `yaml:"pretty,omitempty"`
	MaxBodyBytes int64    `yaml:"max_body_bytes,omitempty"`
	CORS         []string `yaml:"cors,omitempty"`
}

type OTelConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Service  string `yaml:"service,omitempty"`
}

// GetTimeout parses the timeout or returns the default.
func (u *UpstreamConfig) GetTimeout() time.Duration {
	if u == nil || u.Timeout == "" {
		return 10 * time.Second
	}
	d, err := time.ParseDuration(u.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetAddr returns the listen address or the default.
func (s *ServerConfig) GetAddr() string {
	if s == nil || s.Addr == "" {
		return ":8080"
	}
	return s.Addr
}

// GetService returns the service name reported to OpenTelemetry.
func (o *OTelConfig) GetService() string {
	if o == nil || o.Service == "" {
		return "graphcache"
	}
	return o.Service
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes and validates config YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first structural problem in the config.
func (c *Config) Validate() error {
	for _, typename := range c.TypeNames() {
		if typename == "" {
			return errors.New("keys: empty type name")
		}
		if lo.Contains(c.Keys[typename], "") {
			return errors.Errorf("keys.%s: empty field name", typename)
		}
	}
	if c.Upstream != nil {
		if c.Upstream.URL == "" {
			return errors.New("upstream.url is required")
		}
		if c.Upstream.Timeout != "" {
			if _, err := time.ParseDuration(c.Upstream.Timeout); err != nil {
				return errors.Wrap(err, "upstream.timeout")
			}
		}
	}
	return nil
}

// KeyConfig builds key functions from the configured key fields. Keys are
// "<typename>:<value>" with multiple fields joined by ":". A missing field
// yields no key.
func (c *Config) KeyConfig() keys.Config {
	out := make(keys.Config, len(c.Keys))
	for typename, fields := range c.Keys {
		out[typename] = keyFunc(typename, fields)
	}
	return out
}

func keyFunc(typename string, fields []string) keys.KeyFunc {
	if len(fields) == 0 {
		return func(map[string]any) string { return "" }
	}
	return func(data map[string]any) string {
		parts := lo.Map(fields, func(field string, _ int) string {
			return keyPart(data[field])
		})
		if lo.Contains(parts, "") {
			return ""
		}
		return typename + ":" + strings.Join(parts, ":")
	}
}

func keyPart(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case string:
		return p
	}
	return keys.Stringify(v)
}

// OptimisticConfig builds optimistic resolvers that return the configured
// templates with "$arg" strings replaced by mutation arguments.
func (c *Config) OptimisticConfig() cache.OptimisticConfig {
	out := make(cache.OptimisticConfig, len(c.Optimistic))
	for field, tmpl := range c.Optimistic {
		out[field] = func(args map[string]any, _ *cache.Cache, _ *cache.ResolveInfo) any {
			return substitute(tmpl, args)
		}
	}
	return out
}

func substitute(v any, args map[string]any) any {
	switch t := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(t, "$"); ok {
			return args[name]
		}
		return t
	case map[string]any:
		return lo.MapValues(t, func(item any, _ string) any { return substitute(item, args) })
	case []any:
		return lo.Map(t, func(item any, _ int) any { return substitute(item, args) })
	}
	return v
}

// SchemaPath resolves the schema path against the config file's directory.
func (c *Config) SchemaPath() string {
	if c.Schema == "" || filepath.IsAbs(c.Schema) || c.dir == "" {
		return c.Schema
	}
	return filepath.Join(c.dir, c.Schema)
}

// LoadSchema reads the configured SDL. It returns nil when no schema is set.
func (c *Config) LoadSchema() (*schema.Schema, error) {
	path := c.SchemaPath()
	if path == "" {
		return nil, nil
	}
	sdl, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading schema %s", path)
	}
	s, err := schema.BuildFromSDL(string(sdl))
	if err != nil {
		return nil, errors.Wrapf(err, "schema %s", path)
	}
	return s, nil
}

// TypeNames lists the types with configured keys, sorted.
func (c *Config) TypeNames() []string {
	names := lo.Keys(c.Keys)
	sort.Strings(names)
	return names
}
