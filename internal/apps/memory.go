package apps

import (
	"context"
	"fmt"
)

// MemoryRegistry serves apps from configuration. It is the default registry
// for single-node deployments without a database.
type MemoryRegistry struct {
	byID     map[string]*App
	byKey    map[string]*App
	bySecret map[string]*App
}

// NewMemoryRegistry indexes the given apps. Definitions are validated and
// copied; duplicate ids or keys are rejected.
func NewMemoryRegistry(defs []App) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		byID:     make(map[string]*App, len(defs)),
		byKey:    make(map[string]*App, len(defs)),
		bySecret: make(map[string]*App, len(defs)),
	}
	for i := range defs {
		app := defs[i]
		if err := app.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.byID[app.ID]; ok {
			return nil, fmt.Errorf("duplicate app id %q", app.ID)
		}
		if _, ok := r.byKey[app.Key]; ok {
			return nil, fmt.Errorf("duplicate app key %q", app.Key)
		}
		r.byID[app.ID] = &app
		r.byKey[app.Key] = &app
		r.bySecret[app.Secret] = &app
	}
	return r, nil
}

func (r *MemoryRegistry) FindByID(_ context.Context, id string) (*App, error) {
	if app, ok := r.byID[id]; ok {
		return app, nil
	}
	return nil, ErrAppNotFound
}

func (r *MemoryRegistry) FindByKey(_ context.Context, key string) (*App, error) {
	if app, ok := r.byKey[key]; ok {
		return app, nil
	}
	return nil, ErrAppNotFound
}

func (r *MemoryRegistry) FindBySecret(_ context.Context, secret string) (*App, error) {
	if app, ok := r.bySecret[secret]; ok {
		return app, nil
	}
	return nil, ErrAppNotFound
}
