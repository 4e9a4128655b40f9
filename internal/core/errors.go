package core

import "errors"

// Sentinel errors the cloud KMS adapter translates SDK failures into, so
// the service layer never depends on SDK error types directly.
var (
	// ErrKeyNotFound means the cloud reports the key does not exist. The
	// lifecycle manager self-heals the dangling local record on this.
	ErrKeyNotFound = errors.New("cloud key not found")

	// ErrKeyUnusable means the key exists but cannot encrypt: disabled or
	// scheduled for deletion. Recovered by re-provisioning.
	ErrKeyUnusable = errors.New("cloud key is disabled or pending deletion")

	// ErrInvalidARN means the cloud rejected a principal ARN we handed it,
	// typically because the external role was deleted.
	ErrInvalidARN = errors.New("cloud rejected principal ARN")
)
