package s3

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// MemoryStore is an in-memory types.ObjectStore double: every component above the
// facade binds against types.ObjectStore, so the entire engine, lifecycle
// controller, and restore orchestrator can be exercised in tests without a
// network call or a real bucket.
type MemoryStore struct {
	mu sync.Mutex

	buckets map[string]bool
	objects map[string]map[string]*memoryObject
	rules   map[string][]types.LifecycleRule

	multiparts map[string]*memoryMultipart

	restoreDelay time.Duration
	restored     map[string]*memoryRestore

	nextUploadID int
}

type memoryObject struct {
	data         []byte
	storageClass string
	restore      *memoryRestore
}

type memoryMultipart struct {
	bucket string
	key    string
	parts  map[int32][]byte
}

type memoryRestore struct {
	requestedAt time.Time
	tier        types.RestoreTier
	readyAt     time.Time
}

// NewMemoryStore constructs an empty MemoryStore. restoreDelay controls how
// long HeadRestoreStatus reports a restore as in-progress before flipping to
// restored, simulating the provider's asynchronous archive-restore protocol.
func NewMemoryStore(restoreDelay time.Duration) *MemoryStore {
	return &MemoryStore{
		buckets:      make(map[string]bool),
		objects:      make(map[string]map[string]*memoryObject),
		rules:        make(map[string][]types.LifecycleRule),
		multiparts:   make(map[string]*memoryMultipart),
		restored:     make(map[string]*memoryRestore),
		restoreDelay: restoreDelay,
	}
}

// CreateBucket registers a bucket so HeadBucket succeeds against it. Tests
// call this directly; it is not part of types.ObjectStore.
func (m *MemoryStore) CreateBucket(bucket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string]*memoryObject)
	}
}

func (m *MemoryStore) HeadBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buckets[bucket] {
		return errors.New(errors.ErrCodeObjectStoreBucketAbsent, "bucket not found").
			WithComponent("memorystore").WithContext("bucket", bucket)
	}
	return nil
}

func (m *MemoryStore) GetBucketLocation(_ context.Context, bucket string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buckets[bucket] {
		return "", errors.New(errors.ErrCodeObjectStoreBucketAbsent, "bucket not found")
	}
	return "us-east-1", nil
}

func (m *MemoryStore) ListObjects(_ context.Context, bucket, prefix string) ([]types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []types.ObjectInfo
	for key, obj := range m.objects[bucket] {
		if prefix != "" && !hasPrefix(key, prefix) {
			continue
		}
		results = append(results, types.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: time.Now(),
			StorageClass: obj.storageClass,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

func (m *MemoryStore) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[bucket][key]
	if !ok {
		return nil, 0, errors.New(errors.ErrCodeObjectStoreNotFound, "object not found").
			WithContext("bucket", bucket).WithContext("key", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), int64(len(obj.data)), nil
}

func (m *MemoryStore) PutObject(_ context.Context, bucket, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileRead, "failed to read upload body", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string]*memoryObject)
	}
	m.objects[bucket][key] = &memoryObject{data: data, storageClass: "STANDARD"}
	return nil
}

func (m *MemoryStore) CreateMultipartUpload(_ context.Context, bucket, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUploadID++
	id := uploadIDFromCounter(m.nextUploadID)
	m.multiparts[id] = &memoryMultipart{bucket: bucket, key: key, parts: make(map[int32][]byte)}
	return id, nil
}

func (m *MemoryStore) UploadPart(_ context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileRead, "failed to read part body", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.multiparts[uploadID]
	if !ok || mp.bucket != bucket || mp.key != key {
		return "", errors.New(errors.ErrCodeObjectStoreNotFound, "no such multipart upload")
	}
	mp.parts[partNumber] = data
	return etagFor(partNumber, len(data)), nil
}

func (m *MemoryStore) CompleteMultipartUpload(_ context.Context, bucket, key, uploadID string, parts []types.UploadedPart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mp, ok := m.multiparts[uploadID]
	if !ok || mp.bucket != bucket || mp.key != key {
		return errors.New(errors.ErrCodeObjectStoreNotFound, "no such multipart upload")
	}

	sorted := make([]types.UploadedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var full bytes.Buffer
	for _, p := range sorted {
		data, ok := mp.parts[p.PartNumber]
		if !ok {
			return errors.New(errors.ErrCodeObjectStoreProtocol, "missing uploaded part on completion")
		}
		full.Write(data)
	}

	if m.objects[bucket] == nil {
		m.objects[bucket] = make(map[string]*memoryObject)
	}
	m.objects[bucket][key] = &memoryObject{data: full.Bytes(), storageClass: "STANDARD"}
	delete(m.multiparts, uploadID)
	return nil
}

func (m *MemoryStore) AbortMultipartUpload(_ context.Context, bucket, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.multiparts[uploadID]
	if !ok || mp.bucket != bucket || mp.key != key {
		return nil
	}
	delete(m.multiparts, uploadID)
	return nil
}

func (m *MemoryStore) GetBucketLifecycleConfiguration(_ context.Context, bucket string) ([]types.LifecycleRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.LifecycleRule(nil), m.rules[bucket]...), nil
}

func (m *MemoryStore) PutBucketLifecycleConfiguration(_ context.Context, bucket string, rules []types.LifecycleRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[bucket] = append([]types.LifecycleRule(nil), rules...)
	return nil
}

func (m *MemoryStore) DeleteBucketLifecycleConfiguration(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, bucket)
	return nil
}

func (m *MemoryStore) RequestRestore(_ context.Context, bucket, key string, tier types.RestoreTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[bucket][key]
	if !ok {
		return errors.New(errors.ErrCodeObjectStoreNotFound, "object not found")
	}

	now := time.Now()
	r := &memoryRestore{requestedAt: now, tier: tier, readyAt: now.Add(m.restoreDelay)}
	obj.restore = r
	m.restored[bucket+"/"+key] = r
	return nil
}

func (m *MemoryStore) HeadRestoreStatus(_ context.Context, bucket, key string) (bool, bool, *string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[bucket][key]
	if !ok || obj.restore == nil {
		return false, false, nil, nil
	}

	if time.Now().Before(obj.restore.readyAt) {
		return true, false, nil, nil
	}

	expiry := obj.restore.readyAt.Add(7 * 24 * time.Hour).Format(time.RFC3339)
	return false, true, &expiry, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func uploadIDFromCounter(n int) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "upload-0"
	}
	buf := make([]byte, 0, 8)
	for n > 0 {
		buf = append([]byte{digits[n%16]}, buf...)
		n /= 16
	}
	return "upload-" + string(buf)
}

func etagFor(partNumber int32, size int) string {
	const digits = "0123456789abcdef"
	n := partNumber*31 + int32(size)
	if n < 0 {
		n = -n
	}
	buf := make([]byte, 0, 8)
	if n == 0 {
		buf = []byte{'0'}
	}
	for n > 0 {
		buf = append([]byte{digits[n%16]}, buf...)
		n /= 16
	}
	return "\"" + string(buf) + "\""
}

var _ types.ObjectStore = (*MemoryStore)(nil)
