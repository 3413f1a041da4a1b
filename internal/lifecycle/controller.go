// Package lifecycle installs, verifies, inspects, and revokes the
// ReelVault archive-transition rule, and serves as the upload safety
// gate: the Upload Engine must not admit a single item while the gate
// reports unsafe.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/civictech-tv/reelvault-core/internal/circuit"
	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// DefaultVerifyTimeout and DefaultVerifyInterval are the bounds the
// upload gate uses when verifying the default rule.
const (
	DefaultVerifyTimeout  = 60 * time.Second
	DefaultVerifyInterval = 5 * time.Second
)

// defaultTransitionDays is the age, in days, at which the default rule
// moves an object to DeepArchive.
const defaultTransitionDays = 1

// Controller owns the archive-transition policy on a single bucket.
type Controller struct {
	store  types.ObjectStore
	bucket string
	logger *slog.Logger
}

// New constructs a Controller bound to bucket.
func New(store types.ObjectStore, bucket string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: store, bucket: bucket, logger: logger.With("component", "lifecycle")}
}

func defaultRule() types.LifecycleRule {
	return types.LifecycleRule{
		ID:     types.DefaultLifecycleRuleID,
		Status: types.LifecycleEnabled,
		Prefix: types.DefaultLifecyclePrefix,
		Transitions: []types.LifecycleTransition{
			{Days: defaultTransitionDays, StorageClass: types.StorageClassDeepArchive},
		},
	}
}

// EnableDefaultRule installs the default rule. If a rule with the same id
// already exists, this is a no-op success — the call is idempotent.
func (c *Controller) EnableDefaultRule(ctx context.Context) error {
	existing, err := c.store.GetBucketLifecycleConfiguration(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLifecycleInstallFailed, "failed to read existing lifecycle configuration", err).
			WithComponent("lifecycle").WithOperation("EnableDefaultRule")
	}

	for _, r := range existing {
		if r.ID == types.DefaultLifecycleRuleID {
			c.logger.Debug("default lifecycle rule already present, skipping install")
			return nil
		}
	}

	rules := append(existing, defaultRule())
	if err := c.store.PutBucketLifecycleConfiguration(ctx, c.bucket, rules); err != nil {
		return errors.Wrap(errors.ErrCodeLifecycleInstallFailed, "failed to install default lifecycle rule", err).
			WithComponent("lifecycle").WithOperation("EnableDefaultRule")
	}
	c.logger.Info("installed default lifecycle rule", "bucket", c.bucket)
	return nil
}

// VerifyDefaultRule polls the lifecycle configuration every interval until
// the default rule is present, enabled, and has a non-empty transition
// list, or until timeout elapses.
func (c *Controller) VerifyDefaultRule(ctx context.Context, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx)
		if err == nil && status.Enabled && status.RuleID == types.DefaultLifecycleRuleID && status.StorageClass != "" {
			return nil
		}

		if time.Now().After(deadline) {
			return errors.New(errors.ErrCodeLifecycleVerifyTimeout, "timed out verifying default lifecycle rule").
				WithComponent("lifecycle").WithOperation("VerifyDefaultRule").
				WithContext("bucket", c.bucket)
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeLifecycleVerifyTimeout, "verification cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Status returns the normalized state of the default rule. A provider
// response reporting "no configuration exists" is normalized to
// enabled = false with no error.
func (c *Controller) Status(ctx context.Context) (types.LifecycleRuleStatus, error) {
	rules, err := c.store.GetBucketLifecycleConfiguration(ctx, c.bucket)
	if err != nil {
		return types.LifecycleRuleStatus{ErrorMessage: err.Error()}, err
	}

	for _, r := range rules {
		if r.ID != types.DefaultLifecycleRuleID {
			continue
		}
		status := types.LifecycleRuleStatus{
			Enabled: r.Status == types.LifecycleEnabled,
			RuleID:  r.ID,
			Prefix:  r.Prefix,
		}
		if len(r.Transitions) > 0 {
			status.TransitionDays = r.Transitions[0].Days
			status.StorageClass = r.Transitions[0].StorageClass
		}
		return status, nil
	}

	return types.LifecycleRuleStatus{Enabled: false}, nil
}

// DisableDefaultRule removes the default rule, leaving any other rules on
// the bucket untouched.
func (c *Controller) DisableDefaultRule(ctx context.Context) error {
	rules, err := c.store.GetBucketLifecycleConfiguration(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(errors.ErrCodeLifecycleInstallFailed, "failed to read lifecycle configuration", err)
	}

	var remaining []types.LifecycleRule
	found := false
	for _, r := range rules {
		if r.ID == types.DefaultLifecycleRuleID {
			found = true
			continue
		}
		remaining = append(remaining, r)
	}
	if !found {
		return nil
	}

	if len(remaining) == 0 {
		return c.store.DeleteBucketLifecycleConfiguration(ctx, c.bucket)
	}
	return c.store.PutBucketLifecycleConfiguration(ctx, c.bucket, remaining)
}

// breakerStater is implemented by stores fronted by a circuit breaker;
// an open breaker makes the vault unsafe without another network call.
type breakerStater interface {
	BreakerState() circuit.State
}

// UploadReadiness combines credential availability, bucket reachability,
// breaker state, and default-rule health into the single safety gate the
// Upload Engine polls before admitting any item.
func (c *Controller) UploadReadiness(ctx context.Context, credentialsAvailable bool) types.UploadReadiness {
	if !credentialsAvailable {
		return types.UploadReadiness{Safe: false, Message: "credentials unavailable"}
	}

	if bs, ok := c.store.(breakerStater); ok && bs.BreakerState() == circuit.StateOpen {
		return types.UploadReadiness{Safe: false, Message: "object store circuit breaker is open"}
	}

	if err := c.store.HeadBucket(ctx, c.bucket); err != nil {
		return types.UploadReadiness{Safe: false, Message: "bucket unreachable: " + err.Error()}
	}

	status, err := c.Status(ctx)
	if err != nil {
		return types.UploadReadiness{Safe: false, Message: "lifecycle status check failed: " + err.Error()}
	}
	if !status.Enabled {
		return types.UploadReadiness{Safe: false, LifecycleHealthy: false, Message: "default archive rule not enabled"}
	}

	return types.UploadReadiness{Safe: true, LifecycleHealthy: true, Message: "ready"}
}
