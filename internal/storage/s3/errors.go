package s3

import (
	"errors"
	"fmt"

	smithyhttp "github.com/aws/smithy-go/transport/http"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	rverrors "github.com/civictech-tv/reelvault-core/pkg/errors"
)

// translateError maps an AWS SDK v2 error into the closed ReelVault error
// taxonomy, so every other component only ever sees
// rverrors.ReelVaultError and never an SDK type directly.
func translateError(err error, operation, bucket, key string) error {
	if err == nil {
		return nil
	}

	wrap := func(code rverrors.ErrorCode, message string) *rverrors.ReelVaultError {
		e := rverrors.Wrap(code, message, err).
			WithComponent("s3-facade").WithOperation(operation).
			WithContext("bucket", bucket)
		if key != "" {
			e = e.WithContext("key", key)
		}
		return e
	}

	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return wrap(rverrors.ErrCodeObjectStoreNotFound, "object not found")
	}

	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return wrap(rverrors.ErrCodeObjectStoreBucketAbsent, "bucket not found")
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.HTTPStatusCode() == 404:
			return wrap(rverrors.ErrCodeObjectStoreNotFound, "resource not found")
		case respErr.HTTPStatusCode() == 403 || respErr.HTTPStatusCode() == 401:
			return wrap(rverrors.ErrCodeAuthNoAccess, "access denied by object store")
		case respErr.HTTPStatusCode() == 429 || respErr.HTTPStatusCode() >= 500:
			return wrap(rverrors.ErrCodeObjectStoreThrottled, "object store throttled or unavailable")
		default:
			return wrap(rverrors.ErrCodeObjectStoreProtocol, fmt.Sprintf("object store returned HTTP %d", respErr.HTTPStatusCode()))
		}
	}

	return wrap(rverrors.ErrCodeObjectStoreNetwork, "object store call failed")
}
