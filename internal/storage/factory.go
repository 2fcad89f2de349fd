package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"throttler/internal/models"
)

// ErrUnsupportedBackend is returned for a storage type with no registered
// constructor.
var ErrUnsupportedBackend = errors.New("unsupported storage type")

// Constructor opens an audit store from a backend Config.
type Constructor func(Config) (AuditStore, error)

// Factory maps storage types to constructors.
type Factory struct {
	providers   map[string]Constructor
	needsDSN    map[string]bool
	pingTimeout time.Duration
}

// NewFactory returns a factory with the memory, postgres and sqlite backends
// registered.
func NewFactory() *Factory {
	f := &Factory{
		providers:   make(map[string]Constructor),
		needsDSN:    make(map[string]bool),
		pingTimeout: 5 * time.Second,
	}
	f.Register(models.StorageTypeMemory, false, func(c Config) (AuditStore, error) { return NewMemoryStorage(c) })
	f.Register(models.StorageTypePostgres, true, func(c Config) (AuditStore, error) { return NewPostgresStorage(c) })
	f.Register(models.StorageTypeSQLite, true, func(c Config) (AuditStore, error) { return NewSQLiteStorage(c) })
	return f
}

// Register adds or replaces the constructor for name. needsDSN makes
// ValidateConfig require a database DSN.
func (f *Factory) Register(name string, needsDSN bool, ctor Constructor) {
	f.providers[name] = ctor
	f.needsDSN[name] = needsDSN
}

// Create validates config, opens the store and checks that it answers a
// ping. A store that fails the ping is closed again.
func (f *Factory) Create(config models.StorageConfig) (AuditStore, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	store, err := f.providers[config.Type](Config{
		Type:             config.Type,
		ConnectionString: config.Database.DSN,
		MaxOpenConns:     config.Database.MaxOpenConns,
		ConnMaxLifetime:  config.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s audit store: %w", config.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.pingTimeout)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping %s audit store: %w", config.Type, err)
	}
	return store, nil
}

// GetSupportedProviders lists the registered storage types in sorted order.
func (f *Factory) GetSupportedProviders() []string {
	names := make([]string, 0, len(f.providers))
	for name := range f.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateConfig checks that config names a registered backend and carries a
// DSN when the backend needs one.
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	if _, ok := f.providers[config.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, config.Type)
	}
	if f.needsDSN[config.Type] && config.Database.DSN == "" {
		return fmt.Errorf("database DSN is required for %s storage", config.Type)
	}
	return nil
}
