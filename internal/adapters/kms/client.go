// Package kms wraps the cloud KMS SDK behind the narrow core.KMSClient
// port. Every call carries a bounded exponential backoff and runs through a
// per-region circuit breaker so a cloud outage in one region cannot exhaust
// shared capacity.
package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/vaultgate/vaultgate/internal/core"
)

// api is the slice of the SDK client the adapter consumes; narrowing it
// keeps the adapter mockable without the cloud.
type api interface {
	CreateKey(ctx context.Context, params *awskms.CreateKeyInput, optFns ...func(*awskms.Options)) (*awskms.CreateKeyOutput, error)
	CreateAlias(ctx context.Context, params *awskms.CreateAliasInput, optFns ...func(*awskms.Options)) (*awskms.CreateAliasOutput, error)
	GetKeyPolicy(ctx context.Context, params *awskms.GetKeyPolicyInput, optFns ...func(*awskms.Options)) (*awskms.GetKeyPolicyOutput, error)
	PutKeyPolicy(ctx context.Context, params *awskms.PutKeyPolicyInput, optFns ...func(*awskms.Options)) (*awskms.PutKeyPolicyOutput, error)
	Encrypt(ctx context.Context, params *awskms.EncryptInput, optFns ...func(*awskms.Options)) (*awskms.EncryptOutput, error)
	DescribeKey(ctx context.Context, params *awskms.DescribeKeyInput, optFns ...func(*awskms.Options)) (*awskms.DescribeKeyOutput, error)
	ScheduleKeyDeletion(ctx context.Context, params *awskms.ScheduleKeyDeletionInput, optFns ...func(*awskms.Options)) (*awskms.ScheduleKeyDeletionOutput, error)
}

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	API     api           // Required: SDK client or test double
	Region  string        // Required: region this client is scoped to
	Logger  *slog.Logger  // Optional: structured logger
	Breaker *gobreaker.CircuitBreaker
	// MaxRetryElapsed bounds the backoff loop per call. Zero means the
	// default of 15 seconds.
	MaxRetryElapsed time.Duration
}

// Client implements core.KMSClient for one region.
type Client struct {
	api             api
	region          string
	logger          *slog.Logger
	breaker         *gobreaker.CircuitBreaker
	maxRetryElapsed time.Duration
}

const defaultMaxRetryElapsed = 15 * time.Second

// NewClient constructs a region-scoped KMS client wrapper.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.API == nil {
		return nil, errors.New("KMS API client is required")
	}
	if opts.Region == "" {
		return nil, errors.New("region is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "kms_client", "region", opts.Region)
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "kms-" + opts.Region,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			Timeout: 30 * time.Second,
		})
	}

	maxElapsed := opts.MaxRetryElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxRetryElapsed
	}

	return &Client{
		api:             opts.API,
		region:          opts.Region,
		logger:          logger,
		breaker:         breaker,
		maxRetryElapsed: maxElapsed,
	}, nil
}

// call runs op through the circuit breaker with bounded backoff. Errors the
// caller must act on (key unusable, not found, bad ARN) are translated to
// core sentinels and never retried.
func (c *Client) call(ctx context.Context, name string, op func() error) error {
	wrapped := func() error {
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, op()
		})
		if err == nil {
			return nil
		}
		translated := translateError(err)
		if isTerminal(translated) {
			return backoff.Permanent(translated)
		}
		return translated
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxRetryElapsed
	err := backoff.Retry(wrapped, backoff.WithContext(b, ctx))
	if err != nil && c.logger != nil {
		c.logger.DebugContext(ctx, "kms call failed", "op", name, "error", err)
	}
	return err
}

// isTerminal reports errors retrying cannot fix.
func isTerminal(err error) bool {
	return errors.Is(err, core.ErrKeyNotFound) ||
		errors.Is(err, core.ErrKeyUnusable) ||
		errors.Is(err, core.ErrInvalidARN) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// translateError maps SDK error types onto the core sentinels.
func translateError(err error) error {
	var (
		notFound     *kmstypes.NotFoundException
		disabled     *kmstypes.DisabledException
		invalidState *kmstypes.KMSInvalidStateException
		invalidARN   *kmstypes.InvalidArnException
	)
	switch {
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %v", core.ErrKeyNotFound, err)
	case errors.As(err, &disabled), errors.As(err, &invalidState):
		return fmt.Errorf("%w: %v", core.ErrKeyUnusable, err)
	case errors.As(err, &invalidARN):
		return fmt.Errorf("%w: %v", core.ErrInvalidARN, err)
	default:
		return err
	}
}

// CreateKey provisions a new symmetric key with the given policy and tags
// and returns its cloud ARN.
func (c *Client) CreateKey(ctx context.Context, params core.CreateKeyParams) (string, error) {
	tags := make([]kmstypes.Tag, 0, len(params.Tags))
	for k, v := range params.Tags {
		tags = append(tags, kmstypes.Tag{TagKey: aws.String(k), TagValue: aws.String(v)})
	}

	var keyARN string
	err := c.call(ctx, "CreateKey", func() error {
		out, err := c.api.CreateKey(ctx, &awskms.CreateKeyInput{
			Policy:      aws.String(params.Policy),
			Description: aws.String(params.Description),
			KeyUsage:    kmstypes.KeyUsageTypeEncryptDecrypt,
			Tags:        tags,
		})
		if err != nil {
			return err
		}
		if out.KeyMetadata == nil || out.KeyMetadata.Arn == nil {
			return errors.New("create key returned no key metadata")
		}
		keyARN = *out.KeyMetadata.Arn
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create key: %w", err)
	}
	return keyARN, nil
}

// CreateAlias attaches a descriptive alias to the key.
func (c *Client) CreateAlias(ctx context.Context, aliasName, keyARN string) error {
	err := c.call(ctx, "CreateAlias", func() error {
		_, err := c.api.CreateAlias(ctx, &awskms.CreateAliasInput{
			AliasName:   aws.String(aliasName),
			TargetKeyId: aws.String(keyARN),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("create alias: %w", err)
	}
	return nil
}

// GetKeyPolicy fetches the default policy document attached to the key.
func (c *Client) GetKeyPolicy(ctx context.Context, keyARN string) (string, error) {
	var policy string
	err := c.call(ctx, "GetKeyPolicy", func() error {
		out, err := c.api.GetKeyPolicy(ctx, &awskms.GetKeyPolicyInput{
			KeyId:      aws.String(keyARN),
			PolicyName: aws.String("default"),
		})
		if err != nil {
			return err
		}
		if out.Policy != nil {
			policy = *out.Policy
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("get key policy: %w", err)
	}
	return policy, nil
}

// PutKeyPolicy overwrites the default policy document on the key.
func (c *Client) PutKeyPolicy(ctx context.Context, keyARN, policy string) error {
	err := c.call(ctx, "PutKeyPolicy", func() error {
		_, err := c.api.PutKeyPolicy(ctx, &awskms.PutKeyPolicyInput{
			KeyId:      aws.String(keyARN),
			PolicyName: aws.String("default"),
			Policy:     aws.String(policy),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("put key policy: %w", err)
	}
	return nil
}

// Encrypt encrypts plaintext under the key and returns the ciphertext blob.
func (c *Client) Encrypt(ctx context.Context, keyARN string, plaintext []byte) ([]byte, error) {
	var ciphertext []byte
	err := c.call(ctx, "Encrypt", func() error {
		out, err := c.api.Encrypt(ctx, &awskms.EncryptInput{
			KeyId:     aws.String(keyARN),
			Plaintext: plaintext,
		})
		if err != nil {
			return err
		}
		ciphertext = out.CiphertextBlob
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ciphertext, nil
}

// DescribeKeyState returns the cloud-side lifecycle state of the key.
func (c *Client) DescribeKeyState(ctx context.Context, keyARN string) (core.KeyState, error) {
	state := core.KeyStateUnknown
	err := c.call(ctx, "DescribeKey", func() error {
		out, err := c.api.DescribeKey(ctx, &awskms.DescribeKeyInput{
			KeyId: aws.String(keyARN),
		})
		if err != nil {
			return err
		}
		if out.KeyMetadata == nil {
			return errors.New("describe key returned no metadata")
		}
		switch out.KeyMetadata.KeyState {
		case kmstypes.KeyStateEnabled:
			state = core.KeyStateEnabled
		case kmstypes.KeyStateDisabled:
			state = core.KeyStateDisabled
		case kmstypes.KeyStatePendingDeletion:
			state = core.KeyStatePendingDeletion
		default:
			state = core.KeyStateUnknown
		}
		return nil
	})
	if err != nil {
		return core.KeyStateUnknown, fmt.Errorf("describe key: %w", err)
	}
	return state, nil
}

// ScheduleKeyDeletion schedules the key for deletion after the pending
// window. A key already pending deletion is treated as success; scheduling
// is idempotent.
func (c *Client) ScheduleKeyDeletion(ctx context.Context, keyARN string, pendingDays int32) error {
	err := c.call(ctx, "ScheduleKeyDeletion", func() error {
		_, err := c.api.ScheduleKeyDeletion(ctx, &awskms.ScheduleKeyDeletionInput{
			KeyId:               aws.String(keyARN),
			PendingWindowInDays: aws.Int32(pendingDays),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, core.ErrKeyUnusable) {
			// Already disabled or pending deletion: the outcome we wanted.
			return nil
		}
		return fmt.Errorf("schedule key deletion: %w", err)
	}
	return nil
}

// Factory builds and caches region-scoped clients. Safe for concurrent use.
type Factory struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewFactory creates a Factory.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// ForRegion returns the cached client for the region, constructing one with
// default SDK configuration (adaptive retry mode) on first use.
func (f *Factory) ForRegion(ctx context.Context, region string) (core.KMSClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[region]; ok {
		return c, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMode(aws.RetryModeAdaptive),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config for region %s: %w", region, err)
	}

	c, err := NewClient(ClientOptions{
		API:    awskms.NewFromConfig(cfg),
		Region: region,
		Logger: f.logger,
	})
	if err != nil {
		return nil, err
	}
	f.clients[region] = c
	return c, nil
}
