package commands

import (
	"github.com/spf13/cobra"

	s3store "github.com/civictech-tv/reelvault-core/internal/storage/s3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault connectivity and queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}

		status := rt.state.SystemStatus(ctx)
		cmd.Printf("credentials: %v\nbucket reachable: %v\nlifecycle healthy: %v\n",
			status.CredentialsAvailable, status.BucketReachable, status.LifecycleHealthy)
		cmd.Printf("goroutines: %d\nheap: %d bytes\n", status.GoroutineCount, status.HeapAllocBytes)
		if status.DiskFreeBytes > 0 {
			cmd.Printf("disk free: %d bytes\n", status.DiskFreeBytes)
		}

		stats := rt.state.UploadStatistics()
		cmd.Printf("\nuploads: %d completed, %d failed, %d pending, %d in progress\n",
			stats.Completed, stats.Failed, stats.Pending, stats.InProgress)
		cmd.Printf("lifetime: %d files, %d bytes\n", stats.TotalFilesCompleted, stats.TotalBytesUploaded)

		retryStats := rt.engine.RetryStats()
		if retryStats.Sequences > 0 {
			cmd.Printf("retries: %d sequences (%d ok, %d failed), avg %.1f attempts, %s backoff\n",
				retryStats.Sequences, retryStats.Succeeded, retryStats.Failed,
				retryStats.AverageAttempts(), retryStats.TotalDelay)
		}

		if facade, ok := rt.store.(*s3store.Facade); ok {
			pool := facade.PoolStats()
			cmd.Printf("\nconnection pool: %d/%d clients (%d idle), %d hits, %d misses\n",
				pool.Total, pool.MaxSize, pool.Idle, pool.Hits, pool.Misses)
			cmd.Printf("transfer acceleration: %v\n", facade.AccelerationActive())
		}

		readiness := rt.lifecycle.UploadReadiness(ctx, status.CredentialsAvailable)
		cmd.Printf("\nupload readiness: safe=%v (%s)\n", readiness.Safe, readiness.Message)
		return nil
	},
}
