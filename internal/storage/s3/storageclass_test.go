package s3

import (
	"testing"

	sdktypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

func TestStorageClassRoundTrip(t *testing.T) {
	cases := []struct {
		class types.StorageClass
		sdk   sdktypes.TransitionStorageClass
	}{
		{types.StorageClassDeepArchive, sdktypes.TransitionStorageClassDeepArchive},
		{types.StorageClassGlacier, sdktypes.TransitionStorageClassGlacier},
		{types.StorageClassStandardIA, sdktypes.TransitionStorageClassStandardIa},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.sdk, ToSDKStorageClass(tc.class))
		assert.Equal(t, tc.class, FromSDKStorageClass(tc.sdk))
	}
}

func TestToSDKStorageClass_UnknownFallsBackToStandardIA(t *testing.T) {
	assert.Equal(t, sdktypes.TransitionStorageClassStandardIa, ToSDKStorageClass(types.StorageClass("bogus")))
}
