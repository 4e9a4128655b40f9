package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// details on available environment variables:
//   - auth.go: token issuance and identity connector configuration
//   - database.go: database and cache configuration
//   - kms.go: cloud key lifecycle configuration
//   - services.go: service mode and maintenance runner configuration
type AppConfig struct {
	// Environment names this deployment; it becomes the token issuer and
	// is stamped into key aliases and tags.
	Environment string `env:"ENVIRONMENT" envDefault:"local"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Cloud KMS configuration
	KMS KMSConfig `envPrefix:"KMS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"janitor"`

	// Janitor (maintenance runner) configuration
	Janitor JanitorConfig `envPrefix:"JANITOR_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment
// variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.KMS.Sanitize()
	c.Janitor.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services
// field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}
