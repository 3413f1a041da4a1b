package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/civictech-tv/reelvault-core/internal/lifecycle"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload files into the archive vault",
	Long: `Queues the given files and processes them until every one reaches a
terminal state. The archive lifecycle rule is installed and verified
before the first byte is sent; uploads are refused while the vault is
not safe.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}

		if err := rt.lifecycle.EnableDefaultRule(ctx); err != nil {
			return err
		}
		if err := rt.lifecycle.VerifyDefaultRule(ctx, lifecycle.DefaultVerifyTimeout, lifecycle.DefaultVerifyInterval); err != nil {
			return err
		}

		ids := make([]string, 0, len(args))
		for _, path := range args {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			item, err := rt.engine.Enqueue(path, info.Size())
			if err != nil {
				return err
			}
			rt.logger.Info("queued", "file", path, "key", item.Key, "size", info.Size())
			ids = append(ids, item.ID)
		}

		rt.engine.Start(ctx)
		defer rt.engine.Stop()

		events, unsubscribe := rt.bus.Subscribe()
		defer unsubscribe()
		go func() {
			for ev := range events {
				if p, ok := ev.Payload.(types.Progress); ok {
					rt.logger.Info("progress", "item", p.ItemID, "pct",
						fmt.Sprintf("%.1f", p.Percentage), "speed_mbps", fmt.Sprintf("%.2f", p.SpeedMbps))
				}
			}
		}()

		return waitForTerminal(rt, ids)
	},
}

// waitForTerminal blocks until every queued item reaches a terminal
// state, then reports failures.
func waitForTerminal(rt *runtime, ids []string) error {
	for {
		done := 0
		var failed []types.UploadItem
		for _, id := range ids {
			item, ok := rt.engine.Queue().Get(id)
			if !ok {
				continue
			}
			switch item.Status {
			case types.UploadCompleted:
				done++
			case types.UploadFailed, types.UploadCancelled:
				done++
				failed = append(failed, item)
			}
		}
		if done == len(ids) {
			if len(failed) > 0 {
				for _, item := range failed {
					rt.logger.Error("upload failed", "file", item.LocalPath, "error", item.LastError)
				}
				return fmt.Errorf("%d of %d uploads failed", len(failed), len(ids))
			}
			totalBytes, totalFiles := rt.engine.Queue().Totals()
			rt.logger.Info("all uploads complete", "files", totalFiles, "bytes", totalBytes)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}
