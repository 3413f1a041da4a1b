package types

import (
	"context"
	"io"
)

// ObjectStore is the narrow capability surface every other component is
// required to go through; it is the only permitted path to the object
// store. Direct dependencies on SDK types inside engine logic are a design
// smell — bind against this interface instead, so tests can supply an
// in-memory double.
type ObjectStore interface {
	HeadBucket(ctx context.Context, bucket string) error
	GetBucketLocation(ctx context.Context, bucket string) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error

	CreateMultipartUpload(ctx context.Context, bucket, key string) (uploadID string, err error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (etag string, err error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []UploadedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error

	GetBucketLifecycleConfiguration(ctx context.Context, bucket string) ([]LifecycleRule, error)
	PutBucketLifecycleConfiguration(ctx context.Context, bucket string, rules []LifecycleRule) error
	DeleteBucketLifecycleConfiguration(ctx context.Context, bucket string) error

	// RequestRestore and HeadRestoreStatus back the restore orchestrator's
	// interaction with the provider's archive-restore protocol.
	RequestRestore(ctx context.Context, bucket, key string, tier RestoreTier) error
	HeadRestoreStatus(ctx context.Context, bucket, key string) (inProgress bool, restored bool, expiry *string, err error)
}

// CredentialStore models the external keychain/credential capability as
// a single platform-agnostic save/load pair over opaque blobs. On platforms with biometric gating,
// Load may block on a user gesture; the engine never branches on platform.
type CredentialStore interface {
	Save(ctx context.Context, service, profile string, blob []byte) error
	Load(ctx context.Context, service, profile string) ([]byte, error)
}

// MetadataStore is the embedded-database collaborator used only when
// auto-tagging is enabled. Failures here are logged and never fail an
// upload.
type MetadataStore interface {
	CreateFileMetadata(ctx context.Context, path string, tags []string, customFields map[string]string) (FileMetadata, error)
	SaveFileMetadata(ctx context.Context, meta FileMetadata) error
	SearchMetadata(ctx context.Context, query string) ([]FileMetadata, error)
	DeleteFileMetadata(ctx context.Context, path string) error
}

// EventSink is the external event bus the UI subscribes to. The engine
// never depends on any particular transport; it only ever publishes.
type EventSink interface {
	PublishUploadProgress(p Progress)
	PublishTestEvent(message string)
	PublishRestoreNotification(n RestoreNotification)
}
