package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/civictech-tv/reelvault-core/internal/config"
	"github.com/civictech-tv/reelvault-core/internal/credentials"
	"github.com/civictech-tv/reelvault-core/internal/eventsink"
	"github.com/civictech-tv/reelvault-core/internal/lifecycle"
	"github.com/civictech-tv/reelvault-core/internal/metadata"
	"github.com/civictech-tv/reelvault-core/internal/restore"
	"github.com/civictech-tv/reelvault-core/internal/state"
	s3store "github.com/civictech-tv/reelvault-core/internal/storage/s3"
	"github.com/civictech-tv/reelvault-core/internal/upload"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// runtime wires the core components together for one CLI invocation.
type runtime struct {
	cfg       *config.Configuration
	logger    *slog.Logger
	creds     *credentials.Manager
	store     types.ObjectStore
	lifecycle *lifecycle.Controller
	bus       *eventsink.Bus
	engine    *upload.Engine
	restore   *restore.Orchestrator
	state     *state.Manager
	metadata  types.MetadataStore
}

// newRuntime loads configuration and constructs the component graph. The
// environment credential store wins when it holds a usable identity;
// otherwise the per-user file store is consulted.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfiguration()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	mgr := credentials.NewManager(credentials.EnvStore{})
	if !mgr.Available(ctx, cfg.Upload.CredentialsProfile) {
		mgr = credentials.NewManager(credentials.NewFileStore(filepath.Join(configDir(), "credentials.json")))
	}
	creds, err := mgr.Load(ctx, cfg.Upload.CredentialsProfile)
	if err != nil {
		return nil, err
	}

	storeCfg := cfg.StorageConfig()
	storeCfg.Region = creds.Region
	storeCfg.AccessKeyID = creds.AccessKeyID
	storeCfg.SecretAccessKey = creds.SecretAccessKey
	storeCfg.SessionToken = creds.SessionToken

	facade, err := s3store.NewFacade(ctx, cfg.Upload.Bucket, storeCfg, nil, logger)
	if err != nil {
		return nil, err
	}

	ctrl := lifecycle.New(facade, cfg.Upload.Bucket, logger)
	bus := eventsink.NewBus(logger)

	keyCfg := cfg.Key
	if keyCfg.HomeDir == "" {
		keyCfg.HomeDir, _ = os.UserHomeDir()
	}

	credsAvailable := func() bool { return mgr.Available(ctx, cfg.Upload.CredentialsProfile) }
	engine := upload.NewEngine(facade, cfg.Upload.Bucket, cfg.Upload, keyCfg, ctrl, bus, nil, credsAvailable, logger)

	orch := restore.New(facade, cfg.Upload.Bucket, restore.HeadObjectPollingStrategy{}, bus, logger)

	watchRoot := ""
	if len(cfg.Watch) > 0 {
		watchRoot = cfg.Watch[0].RootPath
	}
	stateMgr := state.New(engine.Queue(), ctrl, facade, cfg.Upload.Bucket, credsAvailable, watchRoot, logger)

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		creds:     mgr,
		store:     facade,
		lifecycle: ctrl,
		bus:       bus,
		engine:    engine,
		restore:   orch,
		state:     stateMgr,
	}

	if cfg.Upload.AutoMetadata {
		meta, err := metadata.Open(filepath.Join(configDir(), "metadata.db"), logger)
		if err != nil {
			// Database failures never block uploads.
			logger.Warn("metadata database unavailable, auto-tagging disabled", "error", err)
		} else {
			rt.metadata = meta
		}
	}

	return rt, nil
}
