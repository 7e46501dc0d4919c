package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Options selects and configures a backend
type Options struct {
	// Backend is one of memory, file, sqlite, postgres or none
	Backend string

	// Path is the directory for the file backend and the directory holding
	// stockdesk.db for the sqlite backend
	Path string

	// DSN is the PostgreSQL connection string
	DSN string

	// Fs overrides the filesystem used by the file backend
	Fs afero.Fs
}

// Open creates the backend named in opts
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case "memory":
		return NewMemoryBackend(), nil
	case "", "file":
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return NewFileBackend(fs, opts.Path), nil
	case "sqlite":
		if err := afero.NewOsFs().MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
		return OpenSQLite(ctx, filepath.Join(opts.Path, "stockdesk.db"))
	case "postgres":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a DSN")
		}
		return ConnectPostgres(ctx, opts.DSN)
	case "none":
		return NoneBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
