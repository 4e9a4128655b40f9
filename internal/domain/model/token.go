//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import "time"

// BlocklistEntry records a revoked token id. Entries are garbage-collected
// once ExpiresAt has passed, whether or not the token was ever presented
// again.
type BlocklistEntry struct {
	TokenID   string    `json:"token_id"   db:"token_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// AuthResponse is the plaintext authentication result handed back for USER
// logins and serialized-then-encrypted for IAM logins.
type AuthResponse struct {
	Token        string            `json:"client_token"`
	Policies     []string          `json:"policies"`
	Metadata     map[string]string `json:"metadata"`
	LeaseSeconds int               `json:"lease_duration"`
	Renewable    bool              `json:"renewable"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// EncryptedAuthResponse wraps the KMS-encrypted IAM login payload.
// AuthData is a single base64 ciphertext blob.
type EncryptedAuthResponse struct {
	AuthData string `json:"auth_data"`
}
