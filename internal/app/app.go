// Package app wires configuration, the database pool and the versioned stores
// together for the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/verstore/verstore/internal/config"
	"github.com/verstore/verstore/internal/db"
	"github.com/verstore/verstore/internal/export"
	"github.com/verstore/verstore/internal/versioned"
)

// App holds the long-lived pieces shared by every command.
type App struct {
	Config config.AppConfig
	Conn   *db.Connection

	stores map[string]*versioned.Store
}

// New loads configuration from configPath and connects to the database.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &App{
		Config: cfg,
		Conn:   conn,
		stores: make(map[string]*versioned.Store),
	}, nil
}

// Store returns the versioned store for a configured type, building it on
// first use. The column set is derived once when the type is registered.
func (a *App) Store(name string) (*versioned.Store, error) {
	if store, ok := a.stores[name]; ok {
		return store, nil
	}
	tc, err := a.Config.TypeByName(name)
	if err != nil {
		return nil, err
	}
	def, err := tc.Definition()
	if err != nil {
		return nil, err
	}
	typ, err := versioned.NewType(def, versioned.Options{
		Watch: tc.Watch,
		Limit: tc.Limit,
	})
	if err != nil {
		return nil, err
	}
	store := versioned.NewStore(typ, a.Conn)
	a.stores[name] = store
	return store, nil
}

// Exporter returns an export service bound to the given type's store.
func (a *App) Exporter(name string) (*export.Service, error) {
	store, err := a.Store(name)
	if err != nil {
		return nil, err
	}
	var opts []export.Option
	if a.Config.Export.Directory != "" {
		opts = append(opts, export.WithExportDirectory(a.Config.Export.Directory))
	}
	return export.NewService(store, opts...), nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Conn != nil {
		a.Conn.Close()
	}
}
