package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aristath/butler/internal/backend"
	"github.com/aristath/butler/internal/config"
	"github.com/aristath/butler/internal/events"
	"github.com/aristath/butler/internal/handoff"
	"github.com/aristath/butler/internal/orchestrator"
	"github.com/aristath/butler/internal/persistence"
	"github.com/aristath/butler/internal/planner"
	"github.com/aristath/butler/internal/scheduler"
	"github.com/aristath/butler/internal/workarea"
)

// app holds every long-lived component of a running butler.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    persistence.Store
	bus      *events.EventBus
	pm       *backend.ProcessManager
	backends []backend.Backend // planner and classifier
	executor *scheduler.BackendExecutor
	sched    *scheduler.Scheduler
	manager  *orchestrator.Manager
}

// newApp wires the components, recovers interrupted tasks and starts the
// manager. Close releases everything newApp acquired, including on error.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		bus:    events.NewEventBus(),
		pm:     backend.NewProcessManager(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = persistence.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}

	areas, err := workarea.NewManager(workarea.Config{Root: cfg.WorkAreas.Root})
	if err != nil {
		return nil, err
	}

	breakers := planner.NewBreakerRegistry(logger)
	proposerBackend, err := a.resilientBackend(config.RolePlanner, breakers)
	if err != nil {
		return nil, err
	}
	classifierBackend, err := a.resilientBackend(config.RoleClassifier, breakers)
	if err != nil {
		return nil, err
	}

	execCfg, err := cfg.Backend(config.RoleExecutor)
	if err != nil {
		return nil, err
	}
	a.executor = scheduler.NewBackendExecutor(backend.Factory(a.pm), execCfg)

	a.sched = scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		Executor:      a.executor,
		Preparer:      handoff.NewBuilder(logger),
		Store:         a.store,
		Bus:           a.bus,
		Logger:        logger,
	})

	a.manager, err = orchestrator.NewManager(orchestrator.Config{
		Store:              a.store,
		Scheduler:          a.sched,
		Proposer:           planner.NewBackendProposer(proposerBackend, logger),
		Classifier:         planner.NewBackendClassifier(classifierBackend, logger),
		Bus:                a.bus,
		WorkAreas:          areas,
		Logger:             logger,
		ThreadID:           cfg.Planning.ThreadID,
		OversplitThreshold: cfg.Planning.OversplitThreshold,
		RecentRounds:       cfg.Planning.RecentRounds,
		HistoryTurns:       cfg.Planning.HistoryTurns,
		HabitAddendum:      cfg.Planning.HabitAddendum,
		WorkspaceRoot:      cfg.Planning.WorkspaceRoot,
	})
	if err != nil {
		return nil, err
	}

	recovered, err := a.manager.Recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("recovering tasks: %w", err)
	}
	if recovered > 0 {
		logger.Info("marked interrupted tasks as failed", "count", recovered)
	}
	a.manager.Start(ctx)
	return a, nil
}

func (a *app) resilientBackend(role string, breakers *planner.BreakerRegistry) (backend.Backend, error) {
	bcfg, err := a.cfg.Backend(role)
	if err != nil {
		return nil, err
	}
	b, err := backend.New(bcfg, a.pm)
	if err != nil {
		return nil, fmt.Errorf("creating %s backend: %w", role, err)
	}
	r := planner.NewResilient(b, breakers.Get(role), planner.DefaultRetryConfig())
	a.backends = append(a.backends, r)
	return r, nil
}

// Close stops the manager before the scheduler so no turn submits into a
// closed scheduler, and kills leftover subprocesses last.
func (a *app) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	if a.sched != nil {
		a.sched.Close()
	}
	if a.executor != nil {
		if err := a.executor.Close(); err != nil {
			a.logger.Warn("closing executor backends", "error", err)
		}
	}
	for _, b := range a.backends {
		if err := b.Close(); err != nil {
			a.logger.Warn("closing backend", "error", err)
		}
	}
	if err := a.pm.KillAll(); err != nil {
		a.logger.Warn("killing subprocesses", "error", err)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing task store", "error", err)
		}
	}
	a.bus.Close()
}
