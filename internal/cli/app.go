// Package cli implements the ringside operator commands: preload a show for
// offline use, run sync passes, inspect local state and arbitrate conflicts.
package cli

import (
	"context"
	"log/slog"

	"github.com/ringsideapp/ringside/internal/backend"
	"github.com/ringsideapp/ringside/internal/config"
	"github.com/ringsideapp/ringside/internal/conflict"
	"github.com/ringsideapp/ringside/internal/logging"
	"github.com/ringsideapp/ringside/internal/preload"
	"github.com/ringsideapp/ringside/internal/state"
	"github.com/ringsideapp/ringside/internal/store"
	"github.com/ringsideapp/ringside/internal/syncer"
)

// App wires the offline core together for one CLI invocation.
type App struct {
	Config    *config.Config
	Log       logging.Logger
	Store     *store.Store
	State     *state.Manager
	Conflicts *conflict.Engine
	Preload   *preload.Manager
	Syncer    *syncer.Pusher
	Backend   *backend.HTTPClient
}

// Flag values shared by all commands.
type rootFlags struct {
	configPath string
	dbPath     string
	backend    string
	verbose    bool
}

// newApp opens the store and builds every component. Flag values overlay the
// file config, so flags always have the last word.
func newApp(ctx context.Context, flags *rootFlags) (*App, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.dbPath != "" {
		cfg.DatabasePath = flags.dbPath
	}
	if flags.backend != "" {
		cfg.BackendAddr = flags.backend
	}

	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	log := logging.NewDefault(level)

	st, err := store.Open(ctx, cfg.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	client := backend.NewHTTPClient(cfg.BackendAddr, log)
	manager := state.New(st, log)
	manager.Initialize(ctx)

	engine := conflict.New(conflict.NewDurableStore(ctx, st.Cache, log), client, log)
	manager.SetResolver(engine)

	return &App{
		Config:    cfg,
		Log:       log,
		Store:     st,
		State:     manager,
		Conflicts: engine,
		Preload:   preload.NewManager(client, st, log),
		Syncer:    syncer.New(manager, client, engine, log),
		Backend:   client,
	}, nil
}

// Close releases the store handle.
func (a *App) Close() error {
	return a.Store.Close()
}
