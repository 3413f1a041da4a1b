package s3

import (
	sdktypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// ToSDKStorageClass converts a ReelVault StorageClass into the equivalent
// AWS SDK v2 type, for use in lifecycle rule and object-copy requests. Only
// the three classes a LifecycleRule can carry are recognized; any
// other value falls back to StandardIA so a misconfigured rule never produces
// an invalid API call.
func ToSDKStorageClass(class types.StorageClass) sdktypes.TransitionStorageClass {
	switch class {
	case types.StorageClassDeepArchive:
		return sdktypes.TransitionStorageClassDeepArchive
	case types.StorageClassGlacier:
		return sdktypes.TransitionStorageClassGlacier
	case types.StorageClassStandardIA:
		return sdktypes.TransitionStorageClassStandardIa
	default:
		return sdktypes.TransitionStorageClassStandardIa
	}
}

// FromSDKStorageClass is the inverse of ToSDKStorageClass, used when reading
// back a lifecycle configuration from the bucket.
func FromSDKStorageClass(class sdktypes.TransitionStorageClass) types.StorageClass {
	switch class {
	case sdktypes.TransitionStorageClassDeepArchive:
		return types.StorageClassDeepArchive
	case sdktypes.TransitionStorageClassGlacier:
		return types.StorageClassGlacier
	case sdktypes.TransitionStorageClassStandardIa:
		return types.StorageClassStandardIA
	default:
		return types.StorageClassStandardIA
	}
}
