// Package types holds the domain records and capability interfaces shared
// across ReelVault's core components: the object store facade, the
// lifecycle controller, the restore orchestrator, the upload engine and the
// watcher all exchange state exclusively through the types defined here, so
// that no component needs to import another component's internal package.
package types

import "time"

// UploadStatus is the per-file upload state machine's current state.
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadInProgress UploadStatus = "in_progress"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
	UploadPaused     UploadStatus = "paused"
	UploadCancelled  UploadStatus = "cancelled"
)

// UploadTier selects the admission-control policy applied to an UploadConfig.
type UploadTier string

const (
	TierFree    UploadTier = "free"
	TierPremium UploadTier = "premium"
)

// UploadItem is a single unit of upload work owned, for its entire lifetime,
// by the upload queue.
type UploadItem struct {
	ID string

	// Source
	LocalPath string
	FileName  string
	Size      int64

	// Destination
	Key string

	// Dynamics
	Status        UploadStatus
	UploadedBytes int64
	SpeedMbps     float64
	ETASeconds    *float64
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastError     string
	RetryCount    int
}

// Progress returns the fraction of the file uploaded so far, in [0, 1].
func (u *UploadItem) Progress() float64 {
	if u.Size <= 0 {
		return 0
	}
	return float64(u.UploadedBytes) / float64(u.Size)
}

// Progress is an immutable snapshot emitted on every completed chunk/part.
type Progress struct {
	ItemID        string
	UploadedBytes int64
	TotalBytes    int64
	Percentage    float64
	SpeedMbps     float64
	ETASeconds    *float64
	Status        UploadStatus
}

// UploadConfig is the per-run configuration governing the upload engine.
// Field bounds are enforced per Tier by internal/config's
// ValidateUploadConfig when the configuration is loaded; the upload
// engine's constructor does not validate them.
type UploadConfig struct {
	CredentialsProfile string `yaml:"credentials_profile"`
	Bucket             string `yaml:"bucket"`

	MaxConcurrentUploads int  `yaml:"max_concurrent_uploads"`
	ChunkSizeMB          int  `yaml:"chunk_size_mb"`
	MaxConcurrentParts   int  `yaml:"max_concurrent_parts"`
	AdaptiveChunkSize    bool `yaml:"adaptive_chunk_size"`
	MinChunkSizeMB       int  `yaml:"min_chunk_size_mb"`
	MaxChunkSizeMB       int  `yaml:"max_chunk_size_mb"`

	RetryAttempts  int `yaml:"retry_attempts"`
	TimeoutSeconds int `yaml:"timeout_seconds"`

	BandwidthCapMBps float64 `yaml:"bandwidth_cap_mbps"` // 0 = unlimited

	EnableResume bool   `yaml:"enable_resume"`
	AutoMetadata bool   `yaml:"auto_metadata"`
	KeyPrefix    string `yaml:"key_prefix"`

	Tier UploadTier `yaml:"tier"`
}

// S3KeyConfig drives generate_key's object-key derivation.
type S3KeyConfig struct {
	Prefix                     string `yaml:"prefix"`
	UseDateFolder              bool   `yaml:"use_date_folder"`
	PreserveDirectoryStructure bool   `yaml:"preserve_directory_structure"`
	CustomNamingPattern        string `yaml:"custom_naming_pattern"`
	HomeDir                    string `yaml:"home_dir"`
}

// LifecycleStatus is the enabled/disabled state of a lifecycle rule.
type LifecycleStatus string

const (
	LifecycleEnabled  LifecycleStatus = "enabled"
	LifecycleDisabled LifecycleStatus = "disabled"
)

// StorageClass names a destination storage tier for a lifecycle transition.
type StorageClass string

const (
	StorageClassDeepArchive StorageClass = "DeepArchive"
	StorageClassGlacier     StorageClass = "Glacier"
	StorageClassStandardIA  StorageClass = "StandardIa"
)

// DefaultLifecycleRuleID is the sole rule id ReelVault ever installs or
// looks for.
const DefaultLifecycleRuleID = "ReelVault-Default-Auto-Archive"

// DefaultLifecyclePrefix is the key prefix the default rule is scoped to.
const DefaultLifecyclePrefix = "uploads/"

// LifecycleTransition pairs an age threshold with a destination class.
type LifecycleTransition struct {
	Days         int
	StorageClass StorageClass
}

// LifecycleRule is the fixed-shape archive-transition policy applied to the
// destination bucket.
type LifecycleRule struct {
	ID          string
	Status      LifecycleStatus
	Prefix      string
	Transitions []LifecycleTransition
}

// LifecycleRuleStatus is the normalized view returned by the controller's
// status probe.
type LifecycleRuleStatus struct {
	Enabled        bool
	RuleID         string
	TransitionDays int
	StorageClass   StorageClass
	Prefix         string
	ErrorMessage   string
}

// UploadReadiness is the upload safety-gate verdict.
type UploadReadiness struct {
	Safe             bool
	LifecycleHealthy bool
	Message          string
}

// RestoreTier selects the latency/cost tradeoff for a restore request.
type RestoreTier string

const (
	RestoreStandard  RestoreTier = "standard"
	RestoreExpedited RestoreTier = "expedited"
	RestoreBulk      RestoreTier = "bulk"
)

// RestoreStatus is the lifecycle state of a single restore job.
type RestoreStatus string

const (
	RestoreInProgress RestoreStatus = "in_progress"
	RestoreCompleted  RestoreStatus = "completed"
	RestoreFailed     RestoreStatus = "failed"
	RestoreCancelled  RestoreStatus = "cancelled"
	RestoreNotFound   RestoreStatus = "not_found"
)

// RestoreJob tracks one in-flight or completed restore request, keyed by
// object key in the orchestrator's job map.
type RestoreJob struct {
	Key          string
	Tier         RestoreTier
	Status       RestoreStatus
	RequestedAt  time.Time
	CompletedAt  *time.Time
	ExpiresAt    *time.Time
	ErrorMessage string
}

// RestoreNotification is a terminal-state breadcrumb surfaced to the UI.
type RestoreNotification struct {
	Key       string
	Status    string // "completed" or "failed"
	Message   string
	Timestamp time.Time
}

// DownloadProgress reports the terminal state of a restore download.
type DownloadProgress struct {
	Key          string
	LocalPath    string
	BytesWritten int64
	TotalBytes   int64
	Completed    bool
}

// WatchConfig governs one filesystem watch root.
type WatchConfig struct {
	RootPath        string   `yaml:"root_path"`
	Recursive       bool     `yaml:"recursive"`
	IncludePatterns []string `yaml:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns"`
	ExcludeDirs     []string `yaml:"exclude_dirs"`
	MaxFileSizeMB   int64    `yaml:"max_file_size_mb"` // 0 = no cap
	AutoUpload      bool     `yaml:"auto_upload"`
	AutoMetadata    bool     `yaml:"auto_metadata"`
}

// FileMetadata is the record handed to the metadata collaborator when
// auto-tagging is enabled.
type FileMetadata struct {
	Path         string
	Tags         []string
	CustomFields map[string]string
}

// SystemStatus is a point-in-time snapshot consumed by the UI; never
// authoritative for upload correctness.
type SystemStatus struct {
	CredentialsAvailable bool
	BucketReachable      bool
	LifecycleHealthy     bool
	GoroutineCount       int
	HeapAllocBytes       uint64
	DiskFreeBytes        uint64
	LastHeartbeat        time.Time
}

// ObjectInfo describes one object returned by list_objects.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	StorageClass string
	ETag         string
}

// UploadedPart records one completed multipart part, ready for sorting and
// submission to complete_multipart_upload.
type UploadedPart struct {
	PartNumber int32
	ETag       string
}
