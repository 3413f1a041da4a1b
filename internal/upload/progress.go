package upload

import (
	"time"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// computeProgress derives a Progress record from the byte counters known
// at the moment of a part or chunk flush. elapsed is the time since the
// per-file task started.
func computeProgress(itemID string, uploadedBytes, totalBytes int64, elapsed time.Duration, status types.UploadStatus) types.Progress {
	var percentage float64
	if totalBytes > 0 {
		percentage = float64(uploadedBytes) / float64(totalBytes) * 100
	}

	elapsedSeconds := elapsed.Seconds()
	var speedMbps float64
	if elapsedSeconds > 0 {
		speedMbps = (float64(uploadedBytes) / (1024 * 1024)) / elapsedSeconds
	}

	var etaSeconds *float64
	if speedMbps > 0 {
		remainingMB := float64(totalBytes-uploadedBytes) / (1024 * 1024)
		if remainingMB < 0 {
			remainingMB = 0
		}
		eta := remainingMB / speedMbps
		etaSeconds = &eta
	}

	return types.Progress{
		ItemID:        itemID,
		UploadedBytes: uploadedBytes,
		TotalBytes:    totalBytes,
		Percentage:    percentage,
		SpeedMbps:     speedMbps,
		ETASeconds:    etaSeconds,
		Status:        status,
	}
}
