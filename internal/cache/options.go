package cache

import (
	"log/slog"

	"github.com/hanpama/graphcache/internal/keys"
	"github.com/hanpama/graphcache/internal/schema"
)

// Options configures a Store.
type Options struct {
	Keys                keys.Config
	Resolvers           ResolverConfig
	Updates             UpdatesConfig
	OptimisticMutations OptimisticConfig
	// Schema enables fragment matching on interfaces and unions, field
	// availability warnings, and renamed root types. Optional.
	Schema *schema.Schema
	Logger *slog.Logger
}

// Option is a functional option for New.
type Option func(*Options)

func WithKeys(cfg keys.Config) Option {
	return func(o *Options) { o.Keys = cfg }
}

func WithResolvers(cfg ResolverConfig) Option {
	return func(o *Options) { o.Resolvers = cfg }
}

func WithUpdates(cfg UpdatesConfig) Option {
	return func(o *Options) { o.Updates = cfg }
}

func WithOptimisticMutations(cfg OptimisticConfig) Option {
	return func(o *Options) { o.OptimisticMutations = cfg }
}

func WithSchema(s *schema.Schema) Option {
	return func(o *Options) { o.Schema = s }
}

// WithLogger sets the destination of diagnostics. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
