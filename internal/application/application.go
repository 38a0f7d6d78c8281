// Package application wires the store, schema and upload service together
// for the server and the CLI.
package application

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/ingest"
	"github.com/JonMunkholm/gemstock/internal/inventory"
	"github.com/JonMunkholm/gemstock/internal/store"
)

// Application holds the long-lived pieces of a running process.
type Application struct {
	Config    *config.Config
	Options   inventory.Options
	Validator *ingest.Validator
	Store     *store.Backend
	Service   *core.Service
}

// New resolves the inventory schema, opens the store and builds the service.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	opts, err := inventory.Resolve(cfg.Inventory)
	if err != nil {
		return nil, fmt.Errorf("inventory schema: %w", err)
	}

	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	validator := ingest.NewValidator(inventory.Schema(opts))
	sink := &inventory.GemSink{Builder: inventory.NewBuilder(opts), Store: backend}

	return &Application{
		Config:    cfg,
		Options:   opts,
		Validator: validator,
		Store:     backend,
		Service: core.NewService(validator, sink, cfg.Upload,
			core.WithHistory(backend),
			core.WithDisplayColumns(inventory.DisplayColumns),
		),
	}, nil
}

// Close cancels running uploads and releases the store.
func (a *Application) Close() error {
	a.Service.CancelAll()
	return a.Store.Close()
}
