package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	cache "github.com/hanpama/graphcache/internal/cache"
	"github.com/hanpama/graphcache/internal/config"
	"github.com/hanpama/graphcache/internal/eventbus"
	"github.com/hanpama/graphcache/internal/otel"
	"github.com/hanpama/graphcache/internal/replay"
	"github.com/hanpama/graphcache/internal/server"
)

const rootUsage = `graphcache: normalized GraphQL cache and caching proxy

USAGE:
  graphcache <command> [flags]

COMMANDS:
  serve            Run the caching GraphQL proxy in front of an upstream server
  replay           Run a scripted cache session and print one JSON line per step
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>                      graphcache.yaml with keys, schema and upstream
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.cors <origin>               Allowed CORS origin. Repeatable
  -server.max-body-bytes <n>          Request body limit in bytes, 0 for none (default: 0)
  -upstream.url <url>                 Upstream GraphQL endpoint (required here or in -config)
  -upstream.timeout <duration>        Upstream request timeout (default: 10s)
  -upstream.header <name>             Forward HTTP header upstream. Repeatable
  -cache.policy <policy>              cache-first, network-only or cache-only (default: cache-first)
  -log.level <level>                  debug, info, warn or error (default: warn)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: graphcache)
`

const replayUsage = `replay FLAGS:
  -script <file>   Replay script (required)
  -config <file>   graphcache.yaml; its keys and optimistic results apply when the script has none
  -out <file>      Write output to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("graphcache", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "replay":
		return cmdReplay(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "replay":
		fmt.Print(replayUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// serveSettings are the effective serve options: config file values
// overridden by explicitly set flags.
type serveSettings struct {
	configPath      string
	addr            string
	pretty          bool
	timeout         time.Duration
	cors            stringListFlag
	maxBodyBytes    int64
	upstreamURL     string
	upstreamTimeout time.Duration
	upstreamHeaders stringListFlag
	policy          string
	logLevel        string
	otelEndpoint    string
	otelService     string
}

func parseServeFlags(args []string) (*serveSettings, *config.Config, error) {
	s := &serveSettings{
		addr:            ":8080",
		timeout:         10 * time.Second,
		upstreamTimeout: 10 * time.Second,
		policy:          string(server.CacheFirst),
		logLevel:        "warn",
		otelService:     "graphcache",
	}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&s.configPath, "config", "", "graphcache.yaml path")
	fs.StringVar(&s.addr, "server.addr", s.addr, "HTTP listen address")
	fs.BoolVar(&s.pretty, "server.pretty", s.pretty, "Pretty-print JSON responses")
	fs.DurationVar(&s.timeout, "server.timeout", s.timeout, "Per-request timeout")
	fs.Var(&s.cors, "server.cors", "Allowed CORS origin")
	fs.Int64Var(&s.maxBodyBytes, "server.max-body-bytes", 0, "Request body limit in bytes")
	fs.StringVar(&s.upstreamURL, "upstream.url", "", "Upstream GraphQL endpoint")
	fs.DurationVar(&s.upstreamTimeout, "upstream.timeout", s.upstreamTimeout, "Upstream request timeout")
	fs.Var(&s.upstreamHeaders, "upstream.header", "Forward HTTP header upstream")
	fs.StringVar(&s.policy, "cache.policy", s.policy, "Cache policy for queries")
	fs.StringVar(&s.logLevel, "log.level", s.logLevel, "Log level")
	fs.StringVar(&s.otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	fs.StringVar(&s.otelService, "otel.service", s.otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg := &config.Config{}
	if s.configPath != "" {
		var err error
		if cfg, err = config.Load(s.configPath); err != nil {
			return nil, nil, err
		}
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if u := cfg.Upstream; u != nil {
		if !set["upstream.url"] {
			s.upstreamURL = u.URL
		}
		if !set["upstream.timeout"] {
			s.upstreamTimeout = u.GetTimeout()
		}
		if !set["upstream.header"] {
			s.upstreamHeaders = u.Headers
		}
	}
	if srv := cfg.Server; srv != nil {
		if !set["server.addr"] {
			s.addr = srv.GetAddr()
		}
		if !set["server.pretty"] {
			s.pretty = srv.Pretty
		}
		if !set["server.cors"] {
			s.cors = srv.CORS
		}
		if !set["server.max-body-bytes"] {
			s.maxBodyBytes = srv.MaxBodyBytes
		}
	}
	if o := cfg.OTel; o != nil {
		if !set["otel.endpoint"] {
			s.otelEndpoint = o.Endpoint
		}
		if !set["otel.service"] {
			s.otelService = o.GetService()
		}
	}

	if s.upstreamURL == "" {
		return nil, nil, fmt.Errorf("-upstream.url is required")
	}
	switch server.Policy(s.policy) {
	case server.CacheFirst, server.NetworkOnly, server.CacheOnly:
	default:
		return nil, nil, fmt.Errorf("invalid -cache.policy %q", s.policy)
	}
	return s, cfg, nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log.level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})).With("component", "cache"), nil
}

// newStore builds the cache described by cfg: key fields, optimistic
// mutation results and, when configured, the schema.
func newStore(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	sch, err := cfg.LoadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	opts := []cache.Option{
		cache.WithKeys(cfg.KeyConfig()),
		cache.WithOptimisticMutations(cfg.OptimisticConfig()),
		cache.WithLogger(logger),
	}
	if sch != nil {
		opts = append(opts, cache.WithSchema(sch))
	}
	return cache.New(opts...), nil
}

func cmdServe(args []string) error {
	s, cfg, err := parseServeFlags(args)
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	logger, err := newLogger(s.logLevel, os.Stderr)
	if err != nil {
		return err
	}
	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(s.otelEndpoint, s.otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	upstream := server.NewHTTPUpstream(s.upstreamURL, s.upstreamTimeout, s.upstreamHeaders...)

	sopts := []server.Option{server.WithPolicy(server.Policy(s.policy))}
	if s.pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if s.timeout > 0 {
		sopts = append(sopts, server.WithTimeout(s.timeout))
	}
	if len(s.cors) > 0 {
		sopts = append(sopts, server.WithCORS(s.cors...))
	}
	if s.maxBodyBytes > 0 {
		sopts = append(sopts, server.WithMaxBodyBytes(s.maxBodyBytes))
	}
	h, err := server.New(store, upstream, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)

	log.Printf("GraphQL cache listening on %s, upstream %s", s.addr, s.upstreamURL)
	return http.ListenAndServe(s.addr, mux)
}

func cmdReplay(args []string) error {
	scriptPath := ""
	configPath := ""
	outFile := ""
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&scriptPath, "script", scriptPath, "Replay script")
	fs.StringVar(&configPath, "config", configPath, "graphcache.yaml path")
	fs.StringVar(&outFile, "out", outFile, "Write output to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, replayUsage)
		return err
	}
	if scriptPath == "" {
		fmt.Fprint(os.Stderr, replayUsage)
		return fmt.Errorf("-script is required")
	}

	script, err := replay.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	var opts []cache.Option
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if len(script.Keys) == 0 {
			script.Keys = cfg.Keys
		}
		if len(script.Optimistic) == 0 {
			script.Optimistic = cfg.Optimistic
		}
		sch, err := cfg.LoadSchema()
		if err != nil {
			return fmt.Errorf("load schema: %w", err)
		}
		if sch != nil {
			opts = append(opts, cache.WithSchema(sch))
		}
	}

	var out io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return replay.Run(script, out, opts...)
}
