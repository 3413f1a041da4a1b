// Package commands implements the reelvaultd CLI: manual upload, watch
// mode, lifecycle management, restores, and status inspection over the
// same core engine the desktop shell embeds.
package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civictech-tv/reelvault-core/internal/config"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "reelvaultd",
	Short: "ReelVault - archival media vault engine",
	Long: `ReelVault ingests large media files into an S3-compatible object store
under a deep-archive lifecycle policy, and orchestrates restores back to
disk. This daemon exposes the core engine for manual operation: direct
uploads, directory watching, lifecycle management, and restore handling.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/reelvault/config.yaml)")
	rootCmd.PersistentFlags().String("bucket", "", "destination bucket (overrides config)")
	rootCmd.PersistentFlags().String("profile", "", "credential profile (overrides config)")
	rootCmd.PersistentFlags().String("tier", "", "upload tier: free or premium (overrides config)")

	_ = viper.BindPFlag("bucket", rootCmd.PersistentFlags().Lookup("bucket"))
	_ = viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
	_ = viper.BindPFlag("tier", rootCmd.PersistentFlags().Lookup("tier"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(lifecycleCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(statusCmd)
}

func initViper() {
	viper.SetEnvPrefix("REELVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("reelvaultd %s (%s)\n", Version, Commit)
	},
}

// configDir resolves the per-user configuration directory.
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "reelvault")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reelvault"
	}
	return filepath.Join(home, ".config", "reelvault")
}

// loadConfiguration reads the config file (explicit flag, else the
// default location), applies environment overrides, then flag overrides,
// and validates the result.
func loadConfiguration() (*config.Configuration, error) {
	cfg := config.NewDefault()

	path := cfgFile
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
	}
	if _, err := os.Stat(path); err == nil {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if bucket := viper.GetString("bucket"); bucket != "" {
		cfg.Upload.Bucket = bucket
	}
	if profile := viper.GetString("profile"); profile != "" {
		cfg.Upload.CredentialsProfile = profile
	}
	if tier := viper.GetString("tier"); tier != "" {
		cfg.Upload.Tier = types.UploadTier(strings.ToLower(tier))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
