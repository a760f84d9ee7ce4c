// Package storetest holds the behavioural contract every domain.DocumentStore
// driver is tested against.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bifrost/pkg/domain"
)

// Factory opens a fresh, empty store. Drivers register cleanup on t.
type Factory func(t *testing.T, opts domain.StoreOptions) domain.DocumentStore

// Run exercises the shared gateway contract against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Run("InsertAssignsIdentifier", func(t *testing.T) { insertAssignsIdentifier(t, open) })
	t.Run("UpsertByIdentifier", func(t *testing.T) { upsertByIdentifier(t, open) })
	t.Run("LoadPrefersIdentifier", func(t *testing.T) { loadPrefersIdentifier(t, open) })
	t.Run("LoadMissing", func(t *testing.T) { loadMissing(t, open) })
	t.Run("DuplicateNames", func(t *testing.T) { duplicateNames(t, open) })
	t.Run("UniqueNames", func(t *testing.T) { uniqueNames(t, open) })
	t.Run("Delete", func(t *testing.T) { deleteDocuments(t, open) })
	t.Run("EmptyKey", func(t *testing.T) { emptyKey(t, open) })
	t.Run("CollectionsAreSeparate", func(t *testing.T) { collectionsAreSeparate(t, open) })
	t.Run("RoundTripPreservesWireForm", func(t *testing.T) { roundTrip(t, open) })
	t.Run("Ping", func(t *testing.T) {
		s := open(t, domain.StoreOptions{})
		require.NoError(t, s.Ping(context.Background()))
	})
}

func insertAssignsIdentifier(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	saved, err := s.Save(ctx, domain.KindSample, domain.Document{"name": "S1", "tags": []any{"a"}})
	require.NoError(t, err)
	id, ok := saved.ID()
	require.True(t, ok, "expected assigned _id, got %v", saved)
	_, err = domain.ParseObjectID(id.Hex())
	require.NoError(t, err)

	got, found, err := s.Load(ctx, domain.KindSample, domain.KeyByID(id))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "S1", got["name"])
	assert.Equal(t, []any{"a"}, got["tags"])
}

func upsertByIdentifier(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	saved, err := s.Save(ctx, domain.KindComponent, domain.Document{"name": "C1", "status": "initial"})
	require.NoError(t, err)
	saved["status"] = "updated"
	delete(saved, "name")
	_, err = s.Save(ctx, domain.KindComponent, saved)
	require.NoError(t, err)

	id, _ := saved.ID()
	got, found, err := s.Load(ctx, domain.KindComponent, domain.KeyByID(id))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "updated", got["status"])
	_, hasName := got["name"]
	assert.False(t, hasName, "upsert replaces the whole document")

	_, found, err = s.Load(ctx, domain.KindComponent, domain.KeyByName("C1"))
	require.NoError(t, err)
	assert.False(t, found, "name index follows the replacement")

	explicit := domain.NewObjectID()
	_, err = s.Save(ctx, domain.KindComponent, domain.Document{"_id": explicit.Wire(), "name": "C2"})
	require.NoError(t, err)
	got, found, err = s.Load(ctx, domain.KindComponent, domain.KeyByName("C2"))
	require.NoError(t, err)
	require.True(t, found)
	gotID, _ := got.ID()
	assert.Equal(t, explicit, gotID)
}

func loadPrefersIdentifier(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	a, err := s.Save(ctx, domain.KindSample, domain.Document{"name": "A"})
	require.NoError(t, err)
	_, err = s.Save(ctx, domain.KindSample, domain.Document{"name": "B"})
	require.NoError(t, err)

	aID, _ := a.ID()
	got, found, err := s.Load(ctx, domain.KindSample, domain.KeyByBoth(aID, "B"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "A", got["name"])

	_, found, err = s.Load(ctx, domain.KindSample, domain.KeyByBoth(domain.NewObjectID(), "B"))
	require.NoError(t, err)
	assert.False(t, found, "an unknown id is not rescued by a matching name")
}

func loadMissing(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	doc, found, err := s.Load(ctx, domain.KindRun, domain.KeyByName("nobody"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, doc)

	_, found, err = s.Load(ctx, domain.KindHost, domain.KeyByID(domain.NewObjectID()))
	require.NoError(t, err)
	assert.False(t, found)
}

func duplicateNames(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	_, err := s.Save(ctx, domain.KindSample, domain.Document{"name": "twin"})
	require.NoError(t, err)
	_, err = s.Save(ctx, domain.KindSample, domain.Document{"name": "twin"})
	require.NoError(t, err)

	_, _, err = s.Load(ctx, domain.KindSample, domain.KeyByName("twin"))
	var dup domain.DuplicateRecordError
	require.True(t, errors.As(err, &dup), "expected DuplicateRecordError, got %v", err)
	assert.Equal(t, 2, dup.Count)
	assert.Equal(t, domain.KindSample, dup.Kind)

	_, err = s.Delete(ctx, domain.KindSample, domain.KeyByName("twin"))
	assert.True(t, errors.As(err, &dup), "delete must not pick one of several matches")
}

func uniqueNames(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{UniqueNames: true})

	first, err := s.Save(ctx, domain.KindBioDB, domain.Document{"name": "resfinder"})
	require.NoError(t, err)
	_, err = s.Save(ctx, domain.KindBioDB, domain.Document{"name": "resfinder"})
	var dup domain.DuplicateRecordError
	require.True(t, errors.As(err, &dup), "expected DuplicateRecordError, got %v", err)

	first["version"] = "2"
	_, err = s.Save(ctx, domain.KindBioDB, first)
	require.NoError(t, err, "resaving the holder of a name is allowed")

	_, err = s.Save(ctx, domain.KindCategory, domain.Document{"name": "resfinder"})
	require.NoError(t, err, "uniqueness is per collection")
}

func deleteDocuments(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	saved, err := s.Save(ctx, domain.KindHost, domain.Document{"name": "H1"})
	require.NoError(t, err)
	id, _ := saved.ID()

	removed, err := s.Delete(ctx, domain.KindHost, domain.KeyByName("H1"))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, domain.KindHost, domain.KeyByID(id))
	require.NoError(t, err)
	assert.False(t, removed)

	_, found, err := s.Load(ctx, domain.KindHost, domain.KeyByID(id))
	require.NoError(t, err)
	assert.False(t, found)
}

func emptyKey(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	_, _, err := s.Load(ctx, domain.KindSample, domain.LookupKey{})
	assert.ErrorIs(t, err, domain.ErrEmptyReference)
	_, err = s.Delete(ctx, domain.KindSample, domain.LookupKey{Mode: domain.ByID})
	assert.ErrorIs(t, err, domain.ErrEmptyReference)

	_, err = s.Save(ctx, domain.KindSample, domain.Document{"_id": "not-wrapped"})
	assert.Error(t, err)
}

func collectionsAreSeparate(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	saved, err := s.Save(ctx, domain.KindSampleComponent, domain.Document{"name": "S1__C1"})
	require.NoError(t, err)
	id, _ := saved.ID()

	_, found, err := s.Load(ctx, domain.KindRunComponent, domain.KeyByID(id))
	require.NoError(t, err)
	assert.False(t, found)
}

func roundTrip(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, domain.StoreOptions{})

	ref := domain.NewObjectID()
	in := domain.Document{
		"name":     "S1",
		"metadata": map[string]any{"created_at": map[string]any{"$date": "2024-03-01T10:00:00.123Z"}},
		"sample":   map[string]any{"_id": ref.Wire(), "name": "S1"},
		"results":  map[string]any{"score": 0.5, "count": float64(3), "ok": true, "none": nil},
		"list":     []any{map[string]any{"a": "b"}, float64(1)},
	}
	saved, err := s.Save(ctx, domain.KindSampleComponent, in)
	require.NoError(t, err)
	id, _ := saved.ID()

	got, found, err := s.Load(ctx, domain.KindSampleComponent, domain.KeyByID(id))
	require.NoError(t, err)
	require.True(t, found)
	in["_id"] = id.Wire()
	assert.True(t, domain.Equal(in, got), "round trip mismatch:\nwant %v\ngot  %v", in, got)

	got["name"] = "mutated"
	again, _, err := s.Load(ctx, domain.KindSampleComponent, domain.KeyByID(id))
	require.NoError(t, err)
	assert.Equal(t, "S1", again["name"], "loaded documents must not alias stored state")
}
