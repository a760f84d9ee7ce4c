package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bifrost/internal/blob"
	"bifrost/internal/infra/persistence/memory"
	"bifrost/pkg/domain"
)

func blobStores(t *testing.T) map[string]blob.Store {
	t.Helper()
	fs, err := blob.NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]blob.Store{
		"memory":     blob.NewMemory(),
		"filesystem": fs,
		"s3":         blob.NewMockS3ForTests(),
	}
}

// fileFixture saves a sample, a component producing one file and their
// association record.
func fileFixture(t *testing.T, svc *Service) (*SampleComponent, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "reads", "report.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	sample := saveSample(t, svc, map[string]any{"name": "S1"})
	component := saveComponent(t, svc, map[string]any{
		"name":              "A",
		"db_values_changes": map[string]any{"files": []any{path}},
	})
	sc := association(t, svc, sample, component)
	require.NoError(t, sc.Save(context.Background()))
	return sc, path
}

func TestSaveFindLoadFiles(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			log := &captureLogger{}
			svc := newTestService(t, WithBlobStore(store), WithLogger(log))
			sc, path := fileFixture(t, svc)
			owner, _ := sc.ID()

			require.NoError(t, sc.SaveFiles(ctx))
			files, err := svc.FindFiles(ctx, owner)
			require.NoError(t, err)
			require.Len(t, files, 1)
			first := files[0]
			assert.Equal(t, owner, first.OwnerID)
			assert.Equal(t, "S1___A", first.OwnerName)
			assert.Equal(t, domain.KindSampleComponent, first.OwnerType)
			assert.Equal(t, path, first.FullPath)
			assert.Equal(t, "report.txt", first.Filename)
			assert.Equal(t, int64(5), first.Size)

			recorded, ok := sc.Get("files")
			require.True(t, ok)
			assert.Equal(t, []any{map[string]any{"_id": first.ID.Wire(), "path": path}}, recorded)

			require.NoError(t, sc.SaveFiles(ctx))
			files, err = svc.FindFiles(ctx, owner)
			require.NoError(t, err)
			require.Len(t, files, 1)
			assert.NotEqual(t, first.ID, files[0].ID)
			assert.Equal(t, 1, log.count("w:file already stored for this record, replacing it"))

			dest := t.TempDir()
			written, err := svc.LoadFile(ctx, files[0].ID, dest, false)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dest, "report.txt"), written)
			content, err := os.ReadFile(written)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(content))

			_, err = svc.LoadFile(ctx, files[0].ID, dest, false)
			assert.True(t, errors.Is(err, os.ErrExist))

			nested := t.TempDir()
			written, err = svc.LoadFile(ctx, files[0].ID, nested, true)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(nested, path), written)

			explicit := filepath.Join(t.TempDir(), "out", "copy.txt")
			written, err = svc.LoadFile(ctx, files[0].ID, explicit, false)
			require.NoError(t, err)
			assert.Equal(t, explicit, written)

			_, err = svc.LoadFile(ctx, first.ID, dest, false)
			assert.True(t, errors.Is(err, blob.ErrNotFound))

			none, err := svc.FindFiles(ctx, domain.NewObjectID())
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestSaveFilesKeepsOldCopyWhenReplacementFails(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(t, WithBlobStore(store))
			sc, path := fileFixture(t, svc)
			owner, _ := sc.ID()

			require.NoError(t, sc.SaveFiles(ctx))
			before, err := svc.FindFiles(ctx, owner)
			require.NoError(t, err)
			require.Len(t, before, 1)
			recorded, _ := sc.Get("files")

			require.NoError(t, os.Remove(path))
			err = sc.SaveFiles(ctx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, os.ErrNotExist))

			after, err := svc.FindFiles(ctx, owner)
			require.NoError(t, err)
			require.Len(t, after, 1)
			assert.Equal(t, before[0].ID, after[0].ID)
			still, _ := sc.Get("files")
			assert.Equal(t, recorded, still)

			written, err := svc.LoadFile(ctx, after[0].ID, t.TempDir(), false)
			require.NoError(t, err)
			content, err := os.ReadFile(written)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(content))
		})
	}
}

func TestSaveFilesErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("no blob store", func(t *testing.T) {
		svc, err := NewService(memory.NewStore(domain.StoreOptions{}))
		require.NoError(t, err)
		sc, _ := fileFixture(t, svc)
		assert.True(t, errors.Is(sc.SaveFiles(ctx), ErrNoBlobStore))
		_, err = svc.FindFiles(ctx, domain.NewObjectID())
		assert.True(t, errors.Is(err, ErrNoBlobStore))
		_, err = svc.LoadFile(ctx, domain.NewObjectID(), "", false)
		assert.True(t, errors.Is(err, ErrNoBlobStore))
	})

	t.Run("unsaved record", func(t *testing.T) {
		svc := newTestService(t)
		sample := saveSample(t, svc, map[string]any{"name": "S1"})
		component := saveComponent(t, svc, map[string]any{"name": "A"})
		assert.Error(t, association(t, svc, sample, component).SaveFiles(ctx))
	})

	t.Run("component missing", func(t *testing.T) {
		svc := newTestService(t)
		sc, _ := fileFixture(t, svc)
		componentRef, err := sc.Component()
		require.NoError(t, err)
		component, err := svc.LoadComponent(ctx, componentRef)
		require.NoError(t, err)
		_, err = component.Delete(ctx)
		require.NoError(t, err)

		var nf domain.ErrNotFound
		assert.True(t, errors.As(sc.SaveFiles(ctx), &nf))
	})

	t.Run("file missing on disk", func(t *testing.T) {
		svc := newTestService(t)
		sc, path := fileFixture(t, svc)
		require.NoError(t, os.Remove(path))
		assert.True(t, errors.Is(sc.SaveFiles(ctx), os.ErrNotExist))
		_, ok := sc.Get("files")
		assert.False(t, ok)
	})
}

func TestFileKeyLayout(t *testing.T) {
	owner := domain.ObjectID("000000000000000000000001")
	file := domain.ObjectID("000000000000000000000002")
	key := fileKey(domain.KindSampleComponent, owner, file, "/data/run/report.txt")
	assert.Equal(t, domain.KindSampleComponent.Collection()+"/000000000000000000000001/000000000000000000000002/report.txt", key)

	o, f, ok := keySegments(key)
	require.True(t, ok)
	assert.Equal(t, owner.Hex(), o)
	assert.Equal(t, file.Hex(), f)

	_, _, ok = keySegments("loose/key")
	assert.False(t, ok)
}
