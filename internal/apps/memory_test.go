package apps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppValidate(t *testing.T) {
	valid := App{ID: "1", Key: "key", Secret: "secret"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		app  App
	}{
		{"missing id", App{Key: "key", Secret: "secret"}},
		{"non-numeric id", App{ID: "abc", Key: "key", Secret: "secret"}},
		{"missing key", App{ID: "1", Secret: "secret"}},
		{"missing secret", App{ID: "1", Key: "key"}},
		{"negative capacity", App{ID: "1", Key: "key", Secret: "secret", Capacity: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.app.Validate())
		})
	}
}

func TestMemoryRegistryLookups(t *testing.T) {
	registry, err := NewMemoryRegistry([]App{
		{ID: "1", Key: "key-one", Secret: "secret-one"},
		{ID: "2", Key: "key-two", Secret: "secret-two", Capacity: 10},
	})
	require.NoError(t, err)
	ctx := context.Background()

	app, err := registry.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "key-one", app.Key)

	app, err = registry.FindByKey(ctx, "key-two")
	require.NoError(t, err)
	assert.Equal(t, "2", app.ID)
	assert.Equal(t, 10, app.Capacity)

	app, err = registry.FindBySecret(ctx, "secret-one")
	require.NoError(t, err)
	assert.Equal(t, "1", app.ID)

	_, err = registry.FindByID(ctx, "99")
	assert.ErrorIs(t, err, ErrAppNotFound)
	_, err = registry.FindByKey(ctx, "nope")
	assert.ErrorIs(t, err, ErrAppNotFound)
	_, err = registry.FindBySecret(ctx, "nope")
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestMemoryRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewMemoryRegistry([]App{
		{ID: "1", Key: "key-one", Secret: "a"},
		{ID: "1", Key: "key-two", Secret: "b"},
	})
	assert.Error(t, err)

	_, err = NewMemoryRegistry([]App{
		{ID: "1", Key: "same-key", Secret: "a"},
		{ID: "2", Key: "same-key", Secret: "b"},
	})
	assert.Error(t, err)
}

func TestMemoryRegistryRejectsInvalidApp(t *testing.T) {
	_, err := NewMemoryRegistry([]App{{ID: "x", Key: "k", Secret: "s"}})
	assert.Error(t, err)
}
