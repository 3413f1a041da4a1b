package commands

import (
	"github.com/spf13/cobra"

	"github.com/civictech-tv/reelvault-core/internal/lifecycle"
)

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Manage the archive lifecycle rule on the vault bucket",
}

var lifecycleEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install and verify the default archive rule",
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
		rt.logger.Info("archive rule installed and verified", "bucket", rt.cfg.Upload.Bucket)
		return nil
	},
}

var lifecycleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the archive rule state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		status, err := rt.lifecycle.Status(ctx)
		if err != nil {
			return err
		}
		if !status.Enabled {
			cmd.Println("archive rule: not enabled")
			return nil
		}
		cmd.Printf("archive rule: enabled\n  rule:       %s\n  prefix:     %s\n  transition: %d day(s) -> %s\n",
			status.RuleID, status.Prefix, status.TransitionDays, status.StorageClass)
		return nil
	},
}

var lifecycleDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the default archive rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx)
		if err != nil {
			return err
		}
		if err := rt.lifecycle.DisableDefaultRule(ctx); err != nil {
			return err
		}
		rt.logger.Info("archive rule removed", "bucket", rt.cfg.Upload.Bucket)
		return nil
	},
}

func init() {
	lifecycleCmd.AddCommand(lifecycleEnableCmd)
	lifecycleCmd.AddCommand(lifecycleStatusCmd)
	lifecycleCmd.AddCommand(lifecycleDisableCmd)
}
