package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"strings"

	"vsachain/observability/logging"
	"vsachain/storage"
)

var symbolPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,11}$`)

var (
	errEmptyNative   = errors.New("auction: NativeToken must be set")
	errNegativePhase = errors.New("auction: MaxPhaseSeconds must not be negative")
)

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(strings.TrimSpace(c.Node.Storage)) {
	case "", storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("node: unsupported storage backend %q", c.Node.Storage))
	}

	errs = append(errs, c.validateCurrencies()...)
	if c.Auction.MaxPhaseSeconds < 0 {
		errs = append(errs, errNegativePhase)
	}

	if _, _, err := net.SplitHostPort(c.RPC.ListenAddress); err != nil {
		errs = append(errs, fmt.Errorf("rpc: invalid ListenAddress %q: %w", c.RPC.ListenAddress, err))
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rpc: rate limits must not be negative"))
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst == 0 {
		errs = append(errs, errors.New("rpc: RateLimitBurst must be positive when rate limiting is enabled"))
	}
	for _, proxy := range c.RPC.TrustedProxies {
		if net.ParseIP(strings.TrimSpace(proxy)) == nil {
			errs = append(errs, fmt.Errorf("rpc: invalid trusted proxy %q", proxy))
		}
	}
	for _, origin := range c.RPC.AllowedOrigins {
		if _, err := path.Match(strings.ToLower(origin), ""); err != nil || strings.TrimSpace(origin) == "" {
			errs = append(errs, fmt.Errorf("rpc: invalid allowed origin %q", origin))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown level %q", c.Logging.Level))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry: SampleRatio %v outside [0,1]", c.Telemetry.SampleRatio))
	}

	if c.Archive.Enabled {
		switch c.Archive.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Errorf("archive: unsupported driver %q", c.Archive.Driver))
		}
		if strings.TrimSpace(c.Archive.DSN) == "" {
			errs = append(errs, errors.New("archive: DSN must be set"))
		}
	}

	for i, endpoint := range c.Webhooks.Endpoints {
		parsed, err := url.Parse(strings.TrimSpace(endpoint.URL))
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("webhooks: endpoint %d: invalid URL %q", i, endpoint.URL))
		}
		if strings.TrimSpace(endpoint.Secret) == "" {
			errs = append(errs, fmt.Errorf("webhooks: endpoint %d: secret must be set", i))
		}
	}
	if c.Webhooks.MaxAttempts < 0 || c.Webhooks.InitialBackoffMillis < 0 || c.Webhooks.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("webhooks: retry settings must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateCurrencies() []error {
	var errs []error
	native := strings.ToUpper(strings.TrimSpace(c.Auction.NativeToken))
	if native == "" {
		return []error{errEmptyNative}
	}
	if !symbolPattern.MatchString(native) {
		errs = append(errs, fmt.Errorf("auction: invalid native symbol %q", c.Auction.NativeToken))
	}
	seen := map[string]struct{}{native: {}}
	for _, token := range c.Auction.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token))
		if !symbolPattern.MatchString(symbol) {
			errs = append(errs, fmt.Errorf("auction: invalid token symbol %q", token))
			continue
		}
		if _, dup := seen[symbol]; dup {
			errs = append(errs, fmt.Errorf("auction: duplicate token %q", token))
			continue
		}
		seen[symbol] = struct{}{}
	}
	return errs
}

// LoggingOptions maps the logging section onto the logger setup.
func (c *Config) LoggingOptions(service string) logging.Options {
	return logging.Options{
		Service:    service,
		Env:        c.Env,
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}
