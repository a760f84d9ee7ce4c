package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bifrost/internal/blob"
	"bifrost/pkg/domain"
)

// ErrNoBlobStore is returned by file operations on a service without a
// blob store.
var ErrNoBlobStore = errors.New("no blob store configured")

// Blob metadata keys recorded for every stored file.
const (
	metaFileID    = "file_id"
	metaOwnerID   = "owner_id"
	metaOwnerName = "owner_name"
	metaOwnerType = "owner_type"
	metaFullPath  = "full_path"
	metaFilename  = "filename"
)

// StoredFile describes a file attached to an entity.
type StoredFile struct {
	ID          domain.ObjectID
	OwnerID     domain.ObjectID
	OwnerName   string
	OwnerType   domain.Kind
	FullPath    string
	Filename    string
	ContentType string
	Size        int64
	ModTime     time.Time
	Key         string
}

// fileKey lays files out as <collection>/<owner-id>/<file-id>/<basename>.
func fileKey(kind domain.Kind, owner, file domain.ObjectID, path string) string {
	return strings.Join([]string{kind.Collection(), owner.Hex(), file.Hex(), filepath.Base(path)}, "/")
}

// keySegments splits a file key; ok is false for keys not laid out by fileKey.
func keySegments(key string) (owner, file string, ok bool) {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) != 4 {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// SaveFiles stores every file listed in the component's
// db_values_changes.files and records them under "files" on the record. A
// file already stored for the same record and path is replaced once the new
// copy is stored. The record
// must have been saved; it is not saved again.
func (sc *SampleComponent) SaveFiles(ctx context.Context) error {
	return sc.svc.SaveFiles(ctx, sc)
}

// SaveFiles is SampleComponent.SaveFiles.
func (s *Service) SaveFiles(ctx context.Context, sc *SampleComponent) error {
	if s.blobs == nil {
		return ErrNoBlobStore
	}
	return s.run(ctx, OpSaveFiles, func(ctx context.Context) error {
		owner, ok := sc.ID()
		if !ok {
			return fmt.Errorf("save files: %s has no _id, save it first", sc.Kind())
		}
		ownerName, _ := sc.Name()
		componentRef, err := sc.Component()
		if err != nil {
			return fmt.Errorf("save files: %w", err)
		}
		component, err := s.LoadComponent(ctx, componentRef)
		if err != nil {
			return fmt.Errorf("save files: load component: %w", err)
		}
		if component == nil {
			key, _ := componentRef.Key()
			return fmt.Errorf("save files: %w", domain.ErrNotFound{Kind: domain.KindComponent, Key: key})
		}
		existing, err := s.ownerFiles(ctx, sc.Kind(), owner)
		if err != nil {
			return fmt.Errorf("save files: %w", err)
		}

		files := make([]any, 0, len(component.FilePaths()))
		for _, path := range component.FilePaths() {
			id, err := s.putFile(ctx, sc.Kind(), owner, ownerName, path)
			if err != nil {
				return fmt.Errorf("save files: %w", err)
			}
			for _, old := range existing {
				if old.FullPath != path {
					continue
				}
				s.logger.Warn("file already stored for this record, replacing it", "path", path, "file_id", old.ID)
				if _, err := s.blobs.Delete(ctx, old.Key); err != nil {
					return fmt.Errorf("save files: replace %s: %w", path, err)
				}
			}
			files = append(files, map[string]any{"_id": id.Wire(), "path": path})
		}
		return sc.Set("files", files)
	})
}

func (s *Service) putFile(ctx context.Context, kind domain.Kind, owner domain.ObjectID, ownerName, path string) (domain.ObjectID, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	id := s.newID()
	_, err = s.blobs.Put(ctx, fileKey(kind, owner, id, path), f, blob.PutOptions{
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Metadata: map[string]string{
			metaFileID:    id.Hex(),
			metaOwnerID:   owner.Hex(),
			metaOwnerName: ownerName,
			metaOwnerType: string(kind),
			metaFullPath:  path,
			metaFilename:  filepath.Base(path),
		},
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", path, err)
	}
	return id, nil
}

// FindFiles lists the files attached to the entity with identifier owner,
// ordered by storage key.
func (s *Service) FindFiles(ctx context.Context, owner domain.ObjectID) ([]StoredFile, error) {
	if s.blobs == nil {
		return nil, ErrNoBlobStore
	}
	var out []StoredFile
	err := s.run(ctx, OpFindFiles, func(ctx context.Context) error {
		var err error
		out, err = s.scanFiles(ctx, "", func(o, _ string) bool { return o == owner.Hex() })
		return err
	})
	return out, err
}

func (s *Service) ownerFiles(ctx context.Context, kind domain.Kind, owner domain.ObjectID) ([]StoredFile, error) {
	return s.scanFiles(ctx, kind.Collection()+"/"+owner.Hex()+"/", func(string, string) bool { return true })
}

// scanFiles lists blobs under prefix whose key segments pass match and
// fills in metadata the listing did not carry.
func (s *Service) scanFiles(ctx context.Context, prefix string, match func(owner, file string) bool) ([]StoredFile, error) {
	infos, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []StoredFile
	for _, info := range infos {
		owner, file, ok := keySegments(info.Key)
		if !ok || !match(owner, file) {
			continue
		}
		if info.Metadata == nil {
			if info, err = s.blobs.Head(ctx, info.Key); err != nil {
				return nil, err
			}
		}
		out = append(out, storedFile(info))
	}
	return out, nil
}

func storedFile(info blob.Info) StoredFile {
	md := info.Metadata
	return StoredFile{
		ID:          domain.ObjectID(md[metaFileID]),
		OwnerID:     domain.ObjectID(md[metaOwnerID]),
		OwnerName:   md[metaOwnerName],
		OwnerType:   domain.Kind(md[metaOwnerType]),
		FullPath:    md[metaFullPath],
		Filename:    md[metaFilename],
		ContentType: info.ContentType,
		Size:        info.Size,
		ModTime:     info.LastModified,
		Key:         info.Key,
	}
}

// LoadFile writes the stored file id to disk and returns the path written.
// An empty dest writes to the original filename (the original full path
// with subpath) relative to the working directory; a directory dest joins
// the same name onto it. An existing target file is never overwritten.
func (s *Service) LoadFile(ctx context.Context, id domain.ObjectID, dest string, subpath bool) (string, error) {
	if s.blobs == nil {
		return "", ErrNoBlobStore
	}
	var target string
	err := s.run(ctx, OpLoadFile, func(ctx context.Context) error {
		found, err := s.scanFiles(ctx, "", func(_, file string) bool { return file == id.Hex() })
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("file %s: %w", id, blob.ErrNotFound)
		}
		file := found[0]

		name := file.Filename
		if subpath {
			name = file.FullPath
		}
		target = name
		if dest != "" {
			target = dest
			if st, err := os.Stat(dest); err == nil && st.IsDir() {
				target = filepath.Join(dest, name)
			}
		}
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("load file %s: %s: %w", id, target, os.ErrExist)
		}
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("load file %s: %w", id, err)
			}
		}
		_, rc, err := s.blobs.Get(ctx, file.Key)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()
		return writeFile(target, rc)
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
