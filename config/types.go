package config

// NodeConfig locates persistent state.
type NodeConfig struct {
	DataDir string `toml:"DataDir" yaml:"dataDir"`
	// Storage selects the key-value backend: leveldb (default), bolt or memory.
	Storage string `toml:"Storage" yaml:"storage"`
}

// AuctionConfig defines the currencies auctions may settle in and the longest
// phase a seller may request.
type AuctionConfig struct {
	NativeToken     string   `toml:"NativeToken" yaml:"nativeToken"`
	Tokens          []string `toml:"Tokens" yaml:"tokens"`
	MaxPhaseSeconds int64    `toml:"MaxPhaseSeconds" yaml:"maxPhaseSeconds"`
}

// RPCConfig controls the JSON-RPC and websocket listener.
type RPCConfig struct {
	ListenAddress         string   `toml:"ListenAddress" yaml:"listenAddress"`
	JWTSecret             string   `toml:"JWTSecret" yaml:"jwtSecret"`
	JWTIssuer             string   `toml:"JWTIssuer" yaml:"jwtIssuer"`
	RateLimitPerSecond    float64  `toml:"RateLimitPerSecond" yaml:"rateLimitPerSecond"`
	RateLimitBurst        int      `toml:"RateLimitBurst" yaml:"rateLimitBurst"`
	Faucet                bool     `toml:"Faucet" yaml:"faucet"`
	ReadHeaderTimeoutSecs int      `toml:"ReadHeaderTimeoutSecs" yaml:"readHeaderTimeoutSecs"`
	TrustedProxies        []string `toml:"TrustedProxies" yaml:"trustedProxies"`
	// AllowedOrigins lists host patterns accepted on the event websocket.
	// Empty accepts same-origin requests only.
	AllowedOrigins []string `toml:"AllowedOrigins" yaml:"allowedOrigins"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool    `toml:"Insecure" yaml:"insecure"`
	Headers     string  `toml:"Headers" yaml:"headers"`
	Metrics     bool    `toml:"Metrics" yaml:"metrics"`
	Traces      bool    `toml:"Traces" yaml:"traces"`
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// ArchiveConfig persists committed events into a SQL database.
type ArchiveConfig struct {
	Enabled bool `toml:"Enabled" yaml:"enabled"`
	// Driver is sqlite or postgres.
	Driver string `toml:"Driver" yaml:"driver"`
	DSN    string `toml:"DSN" yaml:"dsn"`
}

// WebhookEndpoint receives signed event deliveries.
type WebhookEndpoint struct {
	URL    string   `toml:"URL" yaml:"url"`
	Secret string   `toml:"Secret" yaml:"secret"`
	Events []string `toml:"Events" yaml:"events"`
}

// WebhookConfig groups endpoints and the shared retry policy.
type WebhookConfig struct {
	Endpoints            []WebhookEndpoint `toml:"Endpoints" yaml:"endpoints"`
	MaxAttempts          int               `toml:"MaxAttempts" yaml:"maxAttempts"`
	InitialBackoffMillis int               `toml:"InitialBackoffMillis" yaml:"initialBackoffMillis"`
	TimeoutSeconds       int               `toml:"TimeoutSeconds" yaml:"timeoutSeconds"`
	QueueSize            int               `toml:"QueueSize" yaml:"queueSize"`
}

// ExportsConfig sets where settlement reports are written.
type ExportsConfig struct {
	Dir string `toml:"Dir" yaml:"dir"`
}
