/*
Package config loads and validates the on-disk configuration surface the
ReelVault core engine consumes: UploadConfig, the list of WatchConfig
entries, and the S3KeyConfig used by generate_key.

# Configuration sources

Two sources, applied in order (later wins):

	┌─────────────────────────────┐
	│   REELVAULT_* environment   │ ← highest priority
	│   variables (LoadFromEnv)   │
	└──────────────┬──────────────┘
	               │
	┌──────────────▼──────────────┐
	│   YAML configuration file    │
	│   (LoadFromFile)             │
	└──────────────┬──────────────┘
	               │
	┌──────────────▼──────────────┐
	│   Compiled-in defaults       │ ← lowest priority
	│   (NewDefault)               │
	└──────────────────────────────┘

Unknown top-level YAML fields are a hard error: LoadFromFile decodes in
strict mode and surfaces them as a configuration error.

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/reelvault/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Example configuration file:

	log_level: INFO
	upload:
	  bucket: my-archive-bucket
	  max_concurrent_uploads: 8
	  chunk_size_mb: 10
	  max_concurrent_parts: 4
	  retry_attempts: 3
	  timeout_seconds: 300
	  enable_resume: true
	  auto_metadata: true
	  key_prefix: uploads/
	  tier: premium
	watch:
	  - root_path: /home/alice/Videos
	    recursive: true
	    include_patterns: ["*.mp4", "*.mov"]
	    auto_upload: true
	    auto_metadata: true
	key:
	  prefix: uploads/
	  use_date_folder: true
	storage:
	  region: us-west-2
	  use_accelerate: true
	  pool_size: 8

# Tier validation

Validate (via ValidateUploadConfig) enforces the Free/Premium bounds
table: Free tier is pinned to exactly one concurrent
upload, one concurrent part, a fixed 5 MB chunk, no adaptive chunking
and no resume; Premium relaxes every bound except the shared minimum
retry count of 3. A violation is surfaced as a Configuration-category
error and is never retried.
*/
package config
