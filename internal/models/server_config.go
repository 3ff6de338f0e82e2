package models

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
}

// GatewayConfig holds the shared scheduling gate and retry tunables. The
// limiter bounds the whole process, not any single provider, because the
// deployment has its own outbound quota.
type GatewayConfig struct {
	MaxConcurrency   int `yaml:"max_concurrency" json:"max_concurrency"`
	MinSpacingMs     int `yaml:"min_spacing_ms" json:"min_spacing_ms"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" json:"max_backoff_ms"`
}

// AuthConfig holds the inbound API auth settings
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	APIKeys   string   `yaml:"api_keys,omitempty" json:"-"` // delimited, like provider keys
	JWTSecret string   `yaml:"jwt_secret,omitempty" json:"-"`
	SkipPaths []string `yaml:"skip_paths,omitempty" json:"skip_paths,omitzero"`
}

// CacheConfig holds the redis response-cache settings
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Addr       string `yaml:"addr,omitempty" json:"addr,omitzero"`
	Password   string `yaml:"password,omitempty" json:"-"`
	DB         int    `yaml:"db,omitempty" json:"db,omitzero"`
	TTLSeconds int    `yaml:"ttl_seconds,omitempty" json:"ttl_seconds,omitzero"`
}

// PersonaConfig describes the bot personality rendered into the system prompt
type PersonaConfig struct {
	Name      string   `yaml:"name" json:"name"`
	Bio       string   `yaml:"bio,omitempty" json:"bio,omitzero"`
	Style     string   `yaml:"style,omitempty" json:"style,omitzero"`
	Interests []string `yaml:"interests,omitempty" json:"interests,omitzero"`
}
