package main

import (
	"fmt"
	"os"

	"github.com/brioproj/brio/internal/branch"
	brioconfig "github.com/brioproj/brio/internal/config"
	"github.com/brioproj/brio/internal/dispatch"
	"github.com/brioproj/brio/internal/events"
	"github.com/brioproj/brio/internal/executor"
	"github.com/brioproj/brio/internal/lifecycle"
	"github.com/brioproj/brio/internal/merge"
	"github.com/brioproj/brio/internal/vfs"
)

// kernel bundles the lifecycle manager with the resources it was built
// from, so commands can close them cleanly on exit.
type kernel struct {
	manager *lifecycle.Manager
	emitter *events.Emitter
	db      *branch.DB
}

// openKernel wires a Manager out of the on-disk config and the project's
// .brio/state.db, built fresh at process start for each command invocation.
func openKernel(projectRoot string) (*kernel, error) {
	cfg, err := brioconfig.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dbPath := branch.DefaultDBPath(projectRoot)
	db, err := branch.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening branch database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating branch database: %w", err)
	}
	repo := branch.NewSQLiteRepository(db)

	sessionRoot := os.TempDir() + "/brio-sessions"
	vfsMgr, err := vfs.NewManager(sessionRoot, vfs.SandboxPolicy{AllowedRoots: cfg.Sandbox.AllowedPaths})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session vfs: %w", err)
	}

	registry := merge.NewRegistry()
	registry.Register(merge.UnionStrategy{})
	registry.Register(merge.OursStrategy{})
	registry.Register(merge.TheirsStrategy{})
	registry.Register(merge.NewThreeWayStrategy(merge.MyersDiff{}))

	local := dispatch.NewLocalRouter()
	router := dispatch.New(local, nil, dispatch.NewPluginRegistry())
	agentDispatcher := dispatch.NewAgentDispatcher(router)

	exec := executor.New(agentDispatcher, executor.NoopProgress{})

	emitter := events.NewEmitter(nil)
	manager := lifecycle.New(repo, vfsMgr, registry, exec, cfg.Branch.MaxActive).WithEvents(emitter)

	return &kernel{manager: manager, emitter: emitter, db: db}, nil
}

func (k *kernel) Close() error {
	return k.db.Close()
}
