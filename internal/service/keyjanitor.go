package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultgate/vaultgate/config"
	"github.com/vaultgate/vaultgate/internal/core"
	"github.com/vaultgate/vaultgate/internal/data"
	"github.com/vaultgate/vaultgate/internal/domain/model"
)

// KeyJanitorOptions groups dependencies for KeyJanitor.
type KeyJanitorOptions struct {
	Keys      core.KMSKeyRepository  // Required: key records to sweep
	Roles     core.IAMRoleRepository // Required: orphaned role cleanup
	Lifecycle *KeyLifecycleService   // Required: schedules cloud deletions
	Clients   core.KMSClientFactory  // Required: policy reads before deletion
	Tokens    *TokenService          // Optional: enables blocklist purge
	Janitor   config.JanitorConfig   // Required: sweep cadence and cutoffs
	// OperatorRoleARN gates deletion: only keys whose live policy still
	// grants this role full access were provisioned by this service and are
	// safe to retire.
	OperatorRoleARN string           // Required
	Logger          *slog.Logger     // Optional: structured logger
	Now             func() time.Time // Optional: clock override for tests
}

// KeyJanitor is the resident maintenance runner. It retires cloud keys whose
// principals have stopped authenticating or whose grants were removed,
// deletes role records nothing references anymore, and purges expired token
// revocations.
type KeyJanitor struct {
	keys      core.KMSKeyRepository
	roles     core.IAMRoleRepository
	lifecycle *KeyLifecycleService
	clients   core.KMSClientFactory
	tokens    *TokenService
	cfg       config.JanitorConfig
	operator  string
	logger    *slog.Logger
	now       func() time.Time
}

// JanitorStats summarizes one cleanup pass. KeysScheduled counts actual
// ScheduleDeletion calls; RecordsDropped counts local records removed
// because the cloud key was already gone or already pending deletion.
type JanitorStats struct {
	KeysScheduled    int
	RecordsDropped   int
	KeysSkipped      int
	RolesDeleted     int
	BlocklistDeleted int
}

// retireOutcome classifies what retireKey did with one candidate.
type retireOutcome int

const (
	retireSkipped retireOutcome = iota
	retireScheduled
	retireDropped
)

// NewKeyJanitor constructs a new KeyJanitor.
func NewKeyJanitor(opts KeyJanitorOptions) (*KeyJanitor, error) {
	if opts.Keys == nil {
		return nil, errors.New("KMSKeyRepository is required")
	}
	if opts.Roles == nil {
		return nil, errors.New("IAMRoleRepository is required")
	}
	if opts.Lifecycle == nil {
		return nil, errors.New("KeyLifecycleService is required")
	}
	if opts.Clients == nil {
		return nil, errors.New("KMSClientFactory is required")
	}
	if opts.OperatorRoleARN == "" {
		return nil, errors.New("operator role ARN is required")
	}
	if opts.Janitor.Interval <= 0 {
		return nil, errors.New("janitor interval must be positive")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "key_janitor")
		logger.Debug("KeyJanitor initialized",
			"interval", opts.Janitor.Interval,
			"inactive_after", opts.Janitor.InactiveAfter,
			"blocklist_purge", opts.Janitor.BlocklistPurge)
	}

	return &KeyJanitor{
		keys:      opts.Keys,
		roles:     opts.Roles,
		lifecycle: opts.Lifecycle,
		clients:   opts.Clients,
		tokens:    opts.Tokens,
		cfg:       opts.Janitor,
		operator:  opts.OperatorRoleARN,
		logger:    logger,
		now:       now,
	}, nil
}

// MustNewKeyJanitor constructs a new KeyJanitor and panics on error.
func MustNewKeyJanitor(opts KeyJanitorOptions) *KeyJanitor {
	j, err := NewKeyJanitor(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // Must constructor fails fast during startup
	}
	return j
}

// Run performs a cleanup pass immediately and then on every interval tick
// until the context is canceled. Pass failures are logged, never fatal; the
// next tick tries again.
func (j *KeyJanitor) Run(ctx context.Context) {
	if j.logger != nil {
		j.logger.InfoContext(ctx, "janitor started", "interval", j.cfg.Interval)
	}

	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		stats, err := j.CleanupOnce(ctx)
		if err != nil && j.logger != nil && !errors.Is(err, context.Canceled) {
			j.logger.ErrorContext(ctx, "cleanup pass failed", "error", err)
		} else if j.logger != nil {
			j.logger.InfoContext(ctx, "cleanup pass finished",
				"keys_scheduled", stats.KeysScheduled,
				"records_dropped", stats.RecordsDropped,
				"keys_skipped", stats.KeysSkipped,
				"roles_deleted", stats.RolesDeleted,
				"blocklist_deleted", stats.BlocklistDeleted)
		}

		select {
		case <-ctx.Done():
			if j.logger != nil {
				j.logger.InfoContext(ctx, "janitor stopped")
			}
			return
		case <-ticker.C:
		}
	}
}

// CleanupOnce performs a single cleanup pass: retire abandoned keys, delete
// orphaned role records, purge expired revocations. Per-key failures skip
// that key and continue the sweep.
func (j *KeyJanitor) CleanupOnce(ctx context.Context) (JanitorStats, error) {
	var stats JanitorStats

	cutoff := j.now().UTC().Add(-j.cfg.InactiveAfter)
	candidates, err := j.keys.ListInactiveOrOrphaned(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("list cleanup candidates: %w", err)
	}

	for _, key := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		switch j.retireKey(ctx, key) {
		case retireScheduled:
			stats.KeysScheduled++
		case retireDropped:
			stats.RecordsDropped++
		default:
			stats.KeysSkipped++
		}
		if err := j.pause(ctx); err != nil {
			return stats, err
		}
	}

	orphans, err := j.roles.ListOrphaned(ctx)
	if err != nil {
		return stats, fmt.Errorf("list orphaned roles: %w", err)
	}
	for _, role := range orphans {
		// A role row is deleted only after its keys are gone; the FK cascade
		// must never silently drop a record for a live cloud key.
		remaining, err := j.keys.ListByRole(ctx, role.ID)
		if err != nil {
			return stats, fmt.Errorf("recheck keys for role %s: %w", role.ID, err)
		}
		if len(remaining) > 0 {
			continue
		}
		if err := j.roles.Delete(ctx, role.ID); err != nil {
			if j.logger != nil {
				j.logger.WarnContext(ctx, "orphaned role delete failed", "role_id", role.ID, "error", err)
			}
			continue
		}
		stats.RolesDeleted++
	}

	if j.cfg.BlocklistPurge && j.tokens != nil {
		deleted, err := j.tokens.PurgeExpired(ctx)
		if err != nil {
			if j.logger != nil {
				j.logger.WarnContext(ctx, "blocklist purge failed", "error", err)
			}
		} else {
			stats.BlocklistDeleted = deleted
		}
	}

	return stats, nil
}

// retireKey handles one cleanup candidate. Keys whose live policy no longer
// grants the operator role are left alone; a key the cloud no longer knows
// about (or is already retiring) just loses its local record.
func (j *KeyJanitor) retireKey(ctx context.Context, key *model.KMSKey) retireOutcome {
	client, err := j.clients.ForRegion(ctx, key.Region)
	if err != nil {
		if j.logger != nil {
			j.logger.WarnContext(ctx, "client unavailable for cleanup", "region", key.Region, "error", err)
		}
		return retireSkipped
	}

	state, err := client.DescribeKeyState(ctx, key.KeyARN)
	switch {
	case errors.Is(err, core.ErrKeyNotFound):
		return j.dropRecord(ctx, key)
	case err != nil:
		if j.logger != nil {
			j.logger.WarnContext(ctx, "key state read failed during cleanup", "key_arn", key.KeyARN, "error", err)
		}
		return retireSkipped
	case state == core.KeyStatePendingDeletion:
		// The cloud is already retiring it; only the record needs to go.
		return j.dropRecord(ctx, key)
	}

	policyJSON, err := client.GetKeyPolicy(ctx, key.KeyARN)
	switch {
	case errors.Is(err, core.ErrKeyNotFound):
		return j.dropRecord(ctx, key)
	case err != nil:
		if j.logger != nil {
			j.logger.WarnContext(ctx, "policy read failed during cleanup", "key_arn", key.KeyARN, "error", err)
		}
		return retireSkipped
	}

	if !policyAllowsOperatorDeletion(policyJSON, j.operator) {
		if j.logger != nil {
			j.logger.WarnContext(ctx, "key policy no longer grants operator, skipping",
				"key_arn", key.KeyARN)
		}
		return retireSkipped
	}

	if err := j.lifecycle.ScheduleDeletion(ctx, key); err != nil {
		if j.logger != nil {
			j.logger.WarnContext(ctx, "key retirement failed", "key_arn", key.KeyARN, "error", err)
		}
		return retireSkipped
	}
	return retireScheduled
}

// dropRecord deletes a key record whose cloud key is already gone or
// pending deletion.
func (j *KeyJanitor) dropRecord(ctx context.Context, key *model.KMSKey) retireOutcome {
	if err := j.keys.Delete(ctx, key.ID); err != nil && !errors.Is(err, data.ErrKMSKeyNotFound) {
		if j.logger != nil {
			j.logger.WarnContext(ctx, "dangling key record delete failed", "key_id", key.ID, "error", err)
		}
		return retireSkipped
	}
	return retireDropped
}

// pause spaces out cloud calls during a sweep, honoring cancellation.
func (j *KeyJanitor) pause(ctx context.Context) error {
	if j.cfg.PauseBetweenCalls <= 0 {
		return nil
	}
	timer := time.NewTimer(j.cfg.PauseBetweenCalls)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
