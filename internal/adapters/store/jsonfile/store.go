// Package jsonfile provides the local entity store: one JSON array file per
// collection inside a data directory.
package jsonfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Compile-time check that Store implements EntityStorePort.
var _ ports.EntityStorePort = (*Store)(nil)

// Store reads and restores one collection file.
type Store struct {
	fs   afero.Fs
	dir  string
	kind entity.Kind
	mu   sync.RWMutex
}

// New creates a store for kind under dir. The file is not required to exist.
func New(fs afero.Fs, dir string, kind entity.Kind) (*Store, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownKind, kind)
	}
	if dir == "" {
		return nil, errors.New("jsonfile", "data directory is required")
	}
	return &Store{fs: fs, dir: dir, kind: kind}, nil
}

// NewAll creates one store per kind sharing the same directory.
func NewAll(fs afero.Fs, dir string, kinds []entity.Kind) ([]*Store, error) {
	stores := make([]*Store, 0, len(kinds))
	for _, k := range kinds {
		s, err := New(fs, dir, k)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, nil
}

// Kind returns the entity kind held by this store.
func (s *Store) Kind() entity.Kind {
	return s.kind
}

// Path returns the collection file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.kind.Collection()+".json")
}

// List returns every record in the collection file.
func (s *Store) List(ctx context.Context) ([]entity.Record, error) {
	data, present, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	if !present {
		return []entity.Record{}, nil
	}
	records, err := entity.DecodeCollection(s.kind, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path(), err)
	}
	if records == nil {
		records = []entity.Record{}
	}
	return records, nil
}

// Get returns one record by local ID.
func (s *Store) Get(ctx context.Context, id string) (entity.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.RecordID() == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", errors.ErrRecordNotFound, s.kind, id)
}

// Export returns the raw collection bytes.
func (s *Store) Export(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := afero.ReadFile(s.fs, s.Path())
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewError(errors.CodeStorage, fmt.Sprintf("failed to read %s", s.Path()), err)
	}
	return data, true, nil
}

// Import replaces the collection file with data. The write goes through a
// temporary file and a rename so readers never see a half-written file.
// When present is false the file is removed.
func (s *Store) Import(ctx context.Context, data []byte, present bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !present {
		if err := s.fs.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
			return errors.NewError(errors.CodeStorage, fmt.Sprintf("failed to remove %s", s.Path()), err)
		}
		return nil
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return errors.NewError(errors.CodeStorage, "failed to create data directory", err)
	}

	tmp, err := afero.TempFile(s.fs, s.dir, "."+s.kind.Collection()+"-*.tmp")
	if err != nil {
		return errors.NewError(errors.CodeStorage, "failed to create temporary file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return errors.NewError(errors.CodeStorage, fmt.Sprintf("failed to write %s", tmpName), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return errors.NewError(errors.CodeStorage, fmt.Sprintf("failed to sync %s", tmpName), err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.NewError(errors.CodeStorage, fmt.Sprintf("failed to close %s", tmpName), err)
	}

	if err := s.fs.Rename(tmpName, s.Path()); err != nil {
		_ = s.fs.Remove(tmpName)
		return errors.NewError(errors.CodeStorage, fmt.Sprintf("failed to replace %s", s.Path()), err)
	}
	return nil
}
