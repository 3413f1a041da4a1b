package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/civictech-tv/reelvault-core/internal/circuit"
	"github.com/civictech-tv/reelvault-core/internal/metrics"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// Facade is the sole, narrow path from the rest of ReelVault's core to the
// S3-compatible object store. It implements
// types.ObjectStore directly against the AWS SDK v2, fronted by a
// connection pool and a circuit breaker so a string of provider failures
// opens the breaker instead of retrying into a dead endpoint.
type Facade struct {
	clients *ClientManager
	breaker *circuit.CircuitBreaker
	metrics *metrics.Collector
	logger  *slog.Logger

	// accelFailures counts consecutive failed calls on the accelerated
	// endpoint; at accelFailureLimit the facade falls back to the
	// standard endpoint for the rest of the process.
	accelMu       sync.Mutex
	accelFailures int
}

// accelFailureLimit is how many consecutive accelerated-endpoint failures
// the facade tolerates before disabling Transfer Acceleration.
const accelFailureLimit = 3

// NewFacade constructs a Facade bound to bucket, using cfg for client
// construction. metrics may be nil, in which case calls are unmetered.
func NewFacade(ctx context.Context, bucket string, cfg *Config, collector *metrics.Collector, logger *slog.Logger) (*Facade, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "s3-facade", "bucket", bucket)

	clients, err := NewClientManager(ctx, bucket, cfg, logger)
	if err != nil {
		return nil, err
	}

	breaker := circuit.NewCircuitBreaker("s3-facade:"+bucket, circuit.Config{
		MaxRequests: 1,
		OnStateChange: func(name string, from, to circuit.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from, "to", to)
		},
	})

	return &Facade{clients: clients, breaker: breaker, metrics: collector, logger: logger}, nil
}

// BreakerState exposes the circuit breaker's current state so the upload
// readiness probe can fold it into its safety verdict.
func (f *Facade) BreakerState() circuit.State {
	return f.breaker.GetState()
}

// PoolStats reports connection-pool usage for the status surface.
func (f *Facade) PoolStats() PoolStats {
	return f.clients.GetStats()
}

// AccelerationActive reports whether Transfer Acceleration is currently
// in use.
func (f *Facade) AccelerationActive() bool {
	return f.clients.IsAccelerationActive()
}

func (f *Facade) withClient(ctx context.Context, op string, fn func(*s3.Client) error) error {
	// While acceleration is active every call goes through the
	// accelerated primary; otherwise pooled standard clients serve
	// concurrent part uploads.
	accelerated := f.clients.IsAccelerationActive()

	var client *s3.Client
	if accelerated {
		client = f.clients.GetClient()
	} else {
		client = f.clients.GetPooledClient()
		if client == nil {
			client = f.clients.GetClient()
		} else {
			defer f.clients.ReturnPooledClient(client)
		}
	}

	err := f.breaker.ExecuteWithContext(ctx, func(ctx context.Context) error {
		return fn(client)
	})

	if accelerated {
		f.noteAcceleratedResult(op, err)
	}
	return err
}

// noteAcceleratedResult tracks consecutive failures on the accelerated
// endpoint and falls back to the standard endpoint once the limit is
// reached. Caller cancellation does not count against acceleration.
func (f *Facade) noteAcceleratedResult(op string, err error) {
	f.accelMu.Lock()
	defer f.accelMu.Unlock()

	if err == nil || errors.Is(err, context.Canceled) {
		f.accelFailures = 0
		return
	}

	f.accelFailures++
	if f.accelFailures >= accelFailureLimit {
		f.clients.DisableAcceleration(
			fmt.Sprintf("%d consecutive failures, last during %s: %v", f.accelFailures, op, err))
		f.accelFailures = 0
	}
}

// HeadBucket verifies the bucket exists and is reachable with current
// credentials.
func (f *Facade) HeadBucket(ctx context.Context, bucket string) error {
	err := f.withClient(ctx, "HeadBucket", func(c *s3.Client) error {
		_, err := c.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		return err
	})
	if err != nil {
		return translateError(err, "HeadBucket", bucket, "")
	}
	return nil
}

// GetBucketLocation returns the bucket's region, defaulting to us-east-1
// when the provider reports an empty location constraint (its convention
// for that region).
func (f *Facade) GetBucketLocation(ctx context.Context, bucket string) (string, error) {
	var region string
	err := f.withClient(ctx, "GetBucketLocation", func(c *s3.Client) error {
		out, err := c.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: aws.String(bucket)})
		if err != nil {
			return err
		}
		region = string(out.LocationConstraint)
		return nil
	})
	if err != nil {
		return "", translateError(err, "GetBucketLocation", bucket, "")
	}
	if region == "" {
		region = "us-east-1"
	}
	return region, nil
}

// ListObjects lists objects under an optional key prefix.
func (f *Facade) ListObjects(ctx context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	var results []types.ObjectInfo
	err := f.withClient(ctx, "ListObjects", func(c *s3.Client) error {
		paginator := s3.NewListObjectsV2Paginator(c, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				results = append(results, types.ObjectInfo{
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					LastModified: aws.ToTime(obj.LastModified),
					StorageClass: string(obj.StorageClass),
					ETag:         aws.ToString(obj.ETag),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, "ListObjects", bucket, prefix)
	}
	return results, nil
}

// GetObject streams an object's bytes and reports its total size.
func (f *Facade) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	var body io.ReadCloser
	var size int64
	err := f.withClient(ctx, "GetObject", func(c *s3.Client) error {
		out, err := c.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err != nil {
			return err
		}
		body = out.Body
		size = aws.ToInt64(out.ContentLength)
		return nil
	})
	if err != nil {
		return nil, 0, translateError(err, "GetObject", bucket, key)
	}
	return body, size, nil
}

// PutObject performs a single-request upload; used for the small-file
// single-PUT path.
func (f *Facade) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	err := f.withClient(ctx, "PutObject", func(c *s3.Client) error {
		_, err := c.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          body,
			ContentLength: aws.Int64(size),
		})
		return err
	})
	if err != nil {
		return translateError(err, "PutObject", bucket, key)
	}
	if f.metrics != nil {
		f.metrics.RecordUploadComplete(0, size, true)
	}
	return nil
}

// CreateMultipartUpload begins a multipart upload and returns its id.
func (f *Facade) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	var uploadID string
	err := f.withClient(ctx, "CreateMultipartUpload", func(c *s3.Client) error {
		out, err := c.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		uploadID = aws.ToString(out.UploadId)
		return nil
	})
	if err != nil {
		return "", translateError(err, "CreateMultipartUpload", bucket, key)
	}
	return uploadID, nil
}

// UploadPart uploads one part of an in-progress multipart upload and
// returns its etag.
func (f *Facade) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	var etag string
	err := f.withClient(ctx, "UploadPart", func(c *s3.Client) error {
		out, err := c.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(partNumber),
			Body:          body,
			ContentLength: aws.Int64(size),
		})
		if err != nil {
			return err
		}
		etag = aws.ToString(out.ETag)
		return nil
	})
	if err != nil {
		return "", translateError(err, "UploadPart", bucket, key)
	}
	if f.metrics != nil {
		f.metrics.RecordUploadPart(0, size, true)
	}
	return etag, nil
}

// CompleteMultipartUpload commits a multipart upload; parts are sent
// sorted by part number (a sorted copy is made, the caller's slice is
// left untouched).
func (f *Facade) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []types.UploadedPart) error {
	sorted := make([]types.UploadedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completedParts := make([]s3types.CompletedPart, len(sorted))
	for i, p := range sorted {
		completedParts[i] = s3types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}

	err := f.withClient(ctx, "CompleteMultipartUpload", func(c *s3.Client) error {
		_, err := c.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(bucket),
			Key:             aws.String(key),
			UploadId:        aws.String(uploadID),
			MultipartUpload: &s3types.CompletedMultipartUpload{Parts: completedParts},
		})
		return err
	})
	if err != nil {
		return translateError(err, "CompleteMultipartUpload", bucket, key)
	}
	return nil
}

// AbortMultipartUpload releases the storage held by an in-flight multipart
// upload. Exactly one of complete/abort
// must be called for every create, on every exit path including
// cancellation.
func (f *Facade) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	err := f.withClient(ctx, "AbortMultipartUpload", func(c *s3.Client) error {
		_, err := c.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
		return err
	})
	if err != nil {
		return translateError(err, "AbortMultipartUpload", bucket, key)
	}
	return nil
}

// GetBucketLifecycleConfiguration returns the bucket's lifecycle rules, or
// an empty slice (not an error) when the provider reports that no
// configuration exists; callers treat that as "no rule installed".
func (f *Facade) GetBucketLifecycleConfiguration(ctx context.Context, bucket string) ([]types.LifecycleRule, error) {
	var rules []types.LifecycleRule
	err := f.withClient(ctx, "GetBucketLifecycleConfiguration", func(c *s3.Client) error {
		out, err := c.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
			Bucket: aws.String(bucket),
		})
		if err != nil {
			var apiErr smithy.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchLifecycleConfiguration" {
				return nil
			}
			return err
		}
		for _, r := range out.Rules {
			rules = append(rules, sdkRuleToDomain(r))
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, "GetBucketLifecycleConfiguration", bucket, "")
	}
	return rules, nil
}

// PutBucketLifecycleConfiguration installs the given rules, replacing any
// existing configuration.
func (f *Facade) PutBucketLifecycleConfiguration(ctx context.Context, bucket string, rules []types.LifecycleRule) error {
	sdkRules := make([]s3types.LifecycleRule, len(rules))
	for i, r := range rules {
		sdkRules[i] = domainRuleToSDK(r)
	}

	err := f.withClient(ctx, "PutBucketLifecycleConfiguration", func(c *s3.Client) error {
		_, err := c.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
			Bucket: aws.String(bucket),
			LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
				Rules: sdkRules,
			},
		})
		return err
	})
	if err != nil {
		return translateError(err, "PutBucketLifecycleConfiguration", bucket, "")
	}
	return nil
}

// DeleteBucketLifecycleConfiguration removes the bucket's lifecycle rules.
func (f *Facade) DeleteBucketLifecycleConfiguration(ctx context.Context, bucket string) error {
	err := f.withClient(ctx, "DeleteBucketLifecycleConfiguration", func(c *s3.Client) error {
		_, err := c.DeleteBucketLifecycle(ctx, &s3.DeleteBucketLifecycleInput{
			Bucket: aws.String(bucket),
		})
		return err
	})
	if err != nil {
		return translateError(err, "DeleteBucketLifecycleConfiguration", bucket, "")
	}
	return nil
}

// RequestRestore issues a restore request for an archived object at the
// given tier.
func (f *Facade) RequestRestore(ctx context.Context, bucket, key string, tier types.RestoreTier) error {
	err := f.withClient(ctx, "RestoreObject", func(c *s3.Client) error {
		_, err := c.RestoreObject(ctx, &s3.RestoreObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			RestoreRequest: &s3types.RestoreRequest{
				Days: aws.Int32(restoreExpiryDays),
				GlacierJobParameters: &s3types.GlacierJobParameters{
					Tier: restoreTierToSDK(tier),
				},
			},
		})
		return err
	})
	if err != nil {
		return translateError(err, "RestoreObject", bucket, key)
	}
	return nil
}

// restoreExpiryDays is how long a restored copy stays readable before the
// provider reverts it to archive-only.
const restoreExpiryDays = 7

// HeadRestoreStatus inspects an object's x-amz-restore header to determine
// whether a restore is in progress or complete.
func (f *Facade) HeadRestoreStatus(ctx context.Context, bucket, key string) (inProgress bool, restored bool, expiry *string, err error) {
	callErr := f.withClient(ctx, "HeadObject", func(c *s3.Client) error {
		out, herr := c.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if herr != nil {
			return herr
		}
		inProgress, restored, expiry = parseRestoreHeader(out.Restore)
		return nil
	})
	if callErr != nil {
		return false, false, nil, translateError(callErr, "HeadObject", bucket, key)
	}
	return inProgress, restored, expiry, nil
}

// parseRestoreHeader interprets the x-amz-restore header's ongoing-request
// and expiry-date directives, e.g.
// `ongoing-request="false", expiry-date="Fri, 2024-12-06T00:00:00Z"`.
func parseRestoreHeader(header *string) (inProgress bool, restored bool, expiry *string) {
	if header == nil {
		return false, false, nil
	}
	h := *header
	switch {
	case containsSubstr(h, `ongoing-request="true"`):
		return true, false, nil
	case containsSubstr(h, `ongoing-request="false"`):
		if idx := indexOfSubstr(h, "expiry-date=\""); idx >= 0 {
			rest := h[idx+len("expiry-date=\""):]
			if end := indexOfSubstr(rest, "\""); end >= 0 {
				exp := rest[:end]
				return false, true, &exp
			}
		}
		return false, true, nil
	default:
		return false, false, nil
	}
}

func containsSubstr(s, substr string) bool { return indexOfSubstr(s, substr) >= 0 }

func indexOfSubstr(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func sdkRuleToDomain(r s3types.LifecycleRule) types.LifecycleRule {
	rule := types.LifecycleRule{
		ID:     aws.ToString(r.ID),
		Status: types.LifecycleDisabled,
	}
	if r.Status == s3types.ExpirationStatusEnabled {
		rule.Status = types.LifecycleEnabled
	}
	if r.Filter != nil {
		if r.Filter.Prefix != nil {
			rule.Prefix = aws.ToString(r.Filter.Prefix)
		}
	}
	for _, t := range r.Transitions {
		rule.Transitions = append(rule.Transitions, types.LifecycleTransition{
			Days:         int(aws.ToInt32(t.Days)),
			StorageClass: FromSDKStorageClass(t.StorageClass),
		})
	}
	return rule
}

func domainRuleToSDK(r types.LifecycleRule) s3types.LifecycleRule {
	status := s3types.ExpirationStatusDisabled
	if r.Status == types.LifecycleEnabled {
		status = s3types.ExpirationStatusEnabled
	}
	sdkRule := s3types.LifecycleRule{
		ID:     aws.String(r.ID),
		Status: status,
		Filter: &s3types.LifecycleRuleFilter{Prefix: aws.String(r.Prefix)},
	}
	for _, t := range r.Transitions {
		sdkRule.Transitions = append(sdkRule.Transitions, s3types.Transition{
			Days:         aws.Int32(int32(t.Days)),
			StorageClass: ToSDKStorageClass(t.StorageClass),
		})
	}
	return sdkRule
}

func restoreTierToSDK(tier types.RestoreTier) s3types.Tier {
	switch tier {
	case types.RestoreExpedited:
		return s3types.TierExpedited
	case types.RestoreBulk:
		return s3types.TierBulk
	default:
		return s3types.TierStandard
	}
}
