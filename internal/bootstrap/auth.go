package bootstrap

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/vaultgate/vaultgate/internal/service"
)

// ParseSigningKeys decodes the configured token signing key ring. Each entry
// is "<key id>:<base64 secret>"; ids must be unique.
func ParseSigningKeys(entries []string) ([]service.SigningKey, error) {
	keys := make([]service.SigningKey, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, encoded, ok := strings.Cut(entry, ":")
		if !ok || id == "" || encoded == "" {
			return nil, fmt.Errorf("signing key %d: want \"<id>:<base64 secret>\"", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("signing key %d: duplicate key id %q", i, id)
		}

		secret, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("signing key %q: decode secret: %w", id, err)
		}
		if len(secret) < 32 {
			return nil, fmt.Errorf("signing key %q: secret must be at least 32 bytes", id)
		}

		seen[id] = struct{}{}
		keys = append(keys, service.SigningKey{ID: id, Secret: secret})
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("no signing keys configured")
	}
	return keys, nil
}
