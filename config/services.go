package config

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeJanitor runs the key cleanup and blocklist purge runner.
	ServiceModeJanitor ServiceMode = "janitor"
	// ServiceModeBlocklistRefresher runs the periodic blocklist reload.
	ServiceModeBlocklistRefresher ServiceMode = "blocklist-refresher"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeJanitor,
		ServiceModeBlocklistRefresher,
	}
}

// ParseServices parses a comma-delimited string of service names and
// returns the enabled services. It validates that all service names are
// valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		valid := false
		for _, m := range ValidServiceModes() {
			if mode == m {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("invalid service name %q (valid: %v)", name, ValidServiceModes())
		}
		services[mode] = true
	}

	if len(services) == 0 {
		return services, errors.New("at least one service must be specified")
	}
	return services, nil
}
