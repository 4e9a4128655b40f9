package config

import "time"

// KMSConfig controls the cloud key lifecycle.
type KMSConfig struct {
	// OperatorRoleARN is the ARN of the role this service itself runs as.
	// Every provisioned key policy grants it full access so the service can
	// validate, repair, and retire its own keys.
	OperatorRoleARN string `env:"OPERATOR_ROLE_ARN,required"`

	// ValidationInterval gates live policy validation. Policy reads are
	// rate-limited by the cloud and validation is defensive, so it is not
	// performed on every authentication.
	ValidationInterval time.Duration `env:"VALIDATION_INTERVAL" envDefault:"1h"`

	// PendingDeletionDays is the cloud-side waiting window before a
	// scheduled key deletion becomes permanent.
	PendingDeletionDays int `env:"PENDING_DELETION_DAYS" envDefault:"7"`

	// PlaintextLimit is the cloud's maximum encryptable payload size in
	// bytes. Larger auth responses are truncated before encryption.
	PlaintextLimit int `env:"PLAINTEXT_LIMIT" envDefault:"4096"`
}

// Sanitize applies guardrails to KMS configuration.
func (c *KMSConfig) Sanitize() {
	if c.ValidationInterval <= 0 {
		c.ValidationInterval = time.Hour
	}
	if c.PendingDeletionDays < 7 {
		// 7 is the cloud's own minimum pending window.
		c.PendingDeletionDays = 7
	}
	if c.PlaintextLimit <= 0 || c.PlaintextLimit > 4096 {
		c.PlaintextLimit = 4096
	}
}

// JanitorConfig controls the key cleanup maintenance runner.
type JanitorConfig struct {
	// Interval is how often the resident runner performs a cleanup pass.
	Interval time.Duration `env:"INTERVAL" envDefault:"6h"`

	// InactiveAfter is how long a key may go unvalidated before the
	// janitor considers it abandoned.
	InactiveAfter time.Duration `env:"INACTIVE_AFTER" envDefault:"720h"`

	// PauseBetweenCalls spaces out cloud calls during a cleanup pass to
	// respect the cloud's rate limits.
	PauseBetweenCalls time.Duration `env:"PAUSE_BETWEEN_CALLS" envDefault:"1s"`

	// BlocklistPurge enables purging expired token revocations in the same
	// pass.
	BlocklistPurge bool `env:"BLOCKLIST_PURGE" envDefault:"true"`
}

// Sanitize applies guardrails to janitor configuration.
func (c *JanitorConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = 6 * time.Hour
	}
	if c.InactiveAfter <= 0 {
		c.InactiveAfter = 720 * time.Hour
	}
	if c.PauseBetweenCalls < 0 {
		c.PauseBetweenCalls = 0
	}
}
