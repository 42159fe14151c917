// Package artifact persists rendered receipt documents.
package artifact

import (
	"context"
	"fmt"
	"path/filepath"

	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Ref points at a stored artifact.
type Ref struct {
	Path string
}

// Store persists rendered bytes to a named location. Storing to an
// existing name replaces the previous artifact, which keeps re-renders
// idempotent by filename.
type Store interface {
	Store(ctx context.Context, location, filename string, data []byte) (Ref, error)
}

// FSStore is an afero-backed Store: OsFs in production, MemMapFs in
// tests.
type FSStore struct {
	fs  afero.Fs
	log *zap.Logger
}

func NewFSStore(fs afero.Fs, log *zap.Logger) *FSStore {
	return &FSStore{
		fs:  fs,
		log: log.Named("artifact.store"),
	}
}

func (s *FSStore) Store(ctx context.Context, location, filename string, data []byte) (Ref, error) {
	_ = ctx

	if err := s.fs.MkdirAll(location, 0o755); err != nil {
		s.log.Error("could not create artifact location",
			zap.String("location", location),
			zap.Error(err),
		)
		return Ref{}, fmt.Errorf("%w: %v", receiptdomain.ErrStorageUnavailable, err)
	}

	path := filepath.Join(location, filename)
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("%w: %v", receiptdomain.ErrStorageUnavailable, err)
	}

	return Ref{Path: path}, nil
}
