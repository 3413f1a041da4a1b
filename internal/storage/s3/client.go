package s3

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func newStaticCredentials(accessKeyID, secretAccessKey, sessionToken string) aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, sessionToken)
}

// ClientManager owns the lifecycle of the AWS SDK S3 client(s) used by
// the facade: a pool of standard clients for concurrent part uploads and
// an optional Transfer-Accelerated primary that the facade falls back
// from when the accelerated endpoint misbehaves.
type ClientManager struct {
	mu                 sync.Mutex
	client             *s3.Client
	acceleratedClient  *s3.Client
	standardClient     *s3.Client
	accelerationActive bool

	pool   *ConnectionPool
	config *Config
	logger *slog.Logger
}

// NewClientManager creates a new S3 client manager.
func NewClientManager(ctx context.Context, bucket string, cfg *Config, logger *slog.Logger) (*ClientManager, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}

	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	if cfg.MaxRetries > 0 {
		optFns = append(optFns, config.WithRetryMaxAttempts(cfg.MaxRetries))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			newStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	standardClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.UseDualStack {
			o.EndpointOptions.UseDualStackEndpoint = aws.DualStackEndpointStateEnabled
		}
	})

	var acceleratedClient *s3.Client
	primaryClient := standardClient
	accelerationActive := false

	if cfg.UseAccelerate {
		acceleratedClient = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
			o.UseAccelerate = true
		})
		primaryClient = acceleratedClient
		accelerationActive = true
		logger.Info("S3 Transfer Acceleration enabled", "bucket", bucket)
	}

	// Pooled clients always use the standard endpoint; acceleration is
	// only ever applied to the primary client so fallback is one swap.
	pool, err := NewConnectionPool(cfg.PoolSize, func() (*s3.Client, error) {
		return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		}), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &ClientManager{
		client:             primaryClient,
		acceleratedClient:  acceleratedClient,
		standardClient:     standardClient,
		pool:               pool,
		config:             cfg,
		logger:             logger,
		accelerationActive: accelerationActive,
	}, nil
}

// GetClient returns the main S3 client: the accelerated one while
// acceleration is active, the standard one otherwise.
func (cm *ClientManager) GetClient() *s3.Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.client
}

// GetPooledClient gets a client from the connection pool.
func (cm *ClientManager) GetPooledClient() *s3.Client {
	return cm.pool.Get()
}

// ReturnPooledClient returns a client to the connection pool.
func (cm *ClientManager) ReturnPooledClient(client *s3.Client) {
	cm.pool.Put(client)
}

// Close closes all client resources.
func (cm *ClientManager) Close() error {
	return cm.pool.Close()
}

// GetStats returns connection pool statistics.
func (cm *ClientManager) GetStats() PoolStats {
	return cm.pool.Stats()
}

// IsAccelerationActive returns whether Transfer Acceleration is currently
// active.
func (cm *ClientManager) IsAccelerationActive() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.accelerationActive
}

// DisableAcceleration disables Transfer Acceleration for the rest of the
// process and swaps the primary client back to the standard endpoint,
// logging why. Safe to call from concurrent facade error paths.
func (cm *ClientManager) DisableAcceleration(reason string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.accelerationActive {
		cm.logger.Warn("disabling S3 Transfer Acceleration", "reason", reason)
		cm.accelerationActive = false
		cm.client = cm.standardClient
	}
}
