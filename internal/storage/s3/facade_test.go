package s3

import (
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

func TestParseRestoreHeader(t *testing.T) {
	cases := []struct {
		name       string
		header     *string
		inProgress bool
		restored   bool
		hasExpiry  bool
	}{
		{"nil header", nil, false, false, false},
		{"ongoing", strPtr(`ongoing-request="true"`), true, false, false},
		{"done with expiry", strPtr(`ongoing-request="false", expiry-date="Fri, 2024-12-06T00:00:00Z"`), false, true, true},
		{"done without expiry", strPtr(`ongoing-request="false"`), false, true, false},
		{"malformed", strPtr("garbage"), false, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inProgress, restored, expiry := parseRestoreHeader(tc.header)
			assert.Equal(t, tc.inProgress, inProgress)
			assert.Equal(t, tc.restored, restored)
			if tc.hasExpiry {
				assert.NotNil(t, expiry)
			} else {
				assert.Nil(t, expiry)
			}
		})
	}
}

func TestLifecycleRuleConversionRoundTrip(t *testing.T) {
	rule := types.LifecycleRule{
		ID:     types.DefaultLifecycleRuleID,
		Status: types.LifecycleEnabled,
		Prefix: types.DefaultLifecyclePrefix,
		Transitions: []types.LifecycleTransition{
			{Days: 1, StorageClass: types.StorageClassDeepArchive},
		},
	}

	sdkRule := domainRuleToSDK(rule)
	assert.Equal(t, s3types.ExpirationStatusEnabled, sdkRule.Status)
	assert.Equal(t, types.DefaultLifecycleRuleID, aws.ToString(sdkRule.ID))

	back := sdkRuleToDomain(sdkRule)
	assert.Equal(t, rule, back)
}

func TestRestoreTierToSDK(t *testing.T) {
	assert.Equal(t, s3types.TierExpedited, restoreTierToSDK(types.RestoreExpedited))
	assert.Equal(t, s3types.TierBulk, restoreTierToSDK(types.RestoreBulk))
	assert.Equal(t, s3types.TierStandard, restoreTierToSDK(types.RestoreStandard))
}

func strPtr(s string) *string { return &s }
