// Package config resolves server settings from defaults, the process
// environment (optionally seeded from .env files) and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
)

// Config holds every setting of the orrery server.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string // empty disables the separate metrics listener
	StaticDir   string
	SystemFile  string // extra system definition loaded next to the catalog

	Tick      time.Duration
	TimeScale float64 // simulated seconds per wall-clock second
	Mode      string  // physical | simulation

	DBPath       string // empty disables the snapshot store
	SampleEvery  int    // store every Nth tick
	NATSURL      string
	NATSEmbedded bool
	NATSPort     int // embedded server port, -1 picks a free one

	RateLimit   float64 // requests per second per client, 0 disables
	RateBurst   int
	EchoDelay   time.Duration
	OpenBrowser bool

	Log     logging.Config
	Tracing observability.TracingConfig
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTPAddr:    "127.0.0.1:8080",
		GRPCAddr:    ":50051",
		StaticDir:   "gui",
		Tick:        time.Second,
		TimeScale:   86400,
		Mode:        "physical",
		SampleEvery: 60,
		NATSPort:    4222,
		RateLimit:   20,
		RateBurst:   40,
		EchoDelay:   2 * time.Second,
		Log:         logging.Config{Level: "info", Format: "text"},
		Tracing:     observability.DefaultTracingConfig(),
	}
}

// Load reads the given .env files (".env" when none are named), ignoring
// missing ones, and then resolves the configuration from the environment.
// Variables already set in the environment win over .env values. The result
// is not validated; call Validate once flags have been applied.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves the configuration from lookup on top of Default. It
// only reports values that cannot be parsed; see Validate.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.str("ORRERY_HTTP_ADDR", &cfg.HTTPAddr)
	p.str("ORRERY_GRPC_ADDR", &cfg.GRPCAddr)
	p.str("ORRERY_METRICS_ADDR", &cfg.MetricsAddr)
	p.str("ORRERY_STATIC_DIR", &cfg.StaticDir)
	p.str("ORRERY_SYSTEM_FILE", &cfg.SystemFile)
	p.duration("ORRERY_TICK", &cfg.Tick)
	p.float("ORRERY_TIME_SCALE", &cfg.TimeScale)
	p.str("ORRERY_MODE", &cfg.Mode)
	p.str("ORRERY_DB_PATH", &cfg.DBPath)
	p.integer("ORRERY_SAMPLE_EVERY", &cfg.SampleEvery)
	p.str("ORRERY_NATS_URL", &cfg.NATSURL)
	p.boolean("ORRERY_NATS_EMBEDDED", &cfg.NATSEmbedded)
	p.integer("ORRERY_NATS_PORT", &cfg.NATSPort)
	p.float("ORRERY_RATE_LIMIT", &cfg.RateLimit)
	p.integer("ORRERY_RATE_BURST", &cfg.RateBurst)
	p.duration("ORRERY_ECHO_DELAY", &cfg.EchoDelay)
	p.boolean("ORRERY_OPEN_BROWSER", &cfg.OpenBrowser)
	p.str("LOG_LEVEL", &cfg.Log.Level)
	p.str("LOG_FORMAT", &cfg.Log.Format)

	p.boolean("ORRERY_TRACING_ENABLED", &cfg.Tracing.Enabled)
	p.str("ORRERY_TRACING_EXPORTER", &cfg.Tracing.Exporter)
	p.str("ORRERY_TRACING_SERVICE_NAME", &cfg.Tracing.ServiceName)
	p.float("ORRERY_TRACING_SAMPLE_RATIO", &cfg.Tracing.SampleRatio)
	p.str("ORRERY_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)

	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, nil
}

// RegisterFlags binds command-line flags to cfg, using the current values as
// defaults so that flags override the environment.
func (c *Config) RegisterFlags(flags *flag.FlagSet) {
	flags.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP address for the web UI, websocket and JSON API")
	flags.StringVar(&c.GRPCAddr, "grpc-addr", c.GRPCAddr, "TCP address of the ephemeris gRPC server (empty disables)")
	flags.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "separate HTTP address for Prometheus /metrics")
	flags.StringVar(&c.StaticDir, "static", c.StaticDir, "directory served at /")
	flags.StringVar(&c.SystemFile, "system", c.SystemFile, "JSON system definition to load in addition to the Solar System")
	flags.DurationVar(&c.Tick, "tick", c.Tick, "wall-clock interval between ephemeris updates")
	flags.Float64Var(&c.TimeScale, "time-scale", c.TimeScale, "simulated seconds per wall-clock second")
	flags.StringVar(&c.Mode, "mode", c.Mode, "propagation mode: physical or simulation")
	flags.StringVar(&c.DBPath, "db", c.DBPath, "SQLite file for system and ephemeris snapshots (empty disables)")
	flags.StringVar(&c.NATSURL, "nats-url", c.NATSURL, "NATS server URL for ephemeris publication (empty disables)")
	flags.BoolVar(&c.NATSEmbedded, "nats-embedded", c.NATSEmbedded, "start an in-process NATS server")
	flags.BoolVar(&c.OpenBrowser, "open", c.OpenBrowser, "open the web UI in the default browser")
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if c.TimeScale <= 0 {
		return fmt.Errorf("time scale must be positive, got %v", c.TimeScale)
	}
	switch c.Mode {
	case "physical", "simulation":
	default:
		return fmt.Errorf("unknown propagation mode %q", c.Mode)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("rate limit and burst must not be negative")
	}
	if c.SampleEvery < 1 {
		return fmt.Errorf("sample interval must be at least 1, got %d", c.SampleEvery)
	}
	return c.Tracing.Validate()
}

// Step is the simulated time covered by one tick.
func (c Config) Step() time.Duration {
	return time.Duration(float64(c.Tick) * c.TimeScale)
}

type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) get(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *parser) boolean(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = b
	}
}

func (p *parser) integer(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = n
	}
}

func (p *parser) float(key string, dst *float64) {
	if v, ok := p.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = f
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.err = fmt.Errorf("%s: %w", key, err)
			return
		}
		*dst = d
	}
}
