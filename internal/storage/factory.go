package storage

import "fmt"

const DefaultStoreKind = "file"

// Options selects the location of each backend; only the fields of the
// chosen kind are read.
type Options struct {
	Path        string
	PostgresDSN string
	S3          S3Options
}

func NewStore(kind string, opts Options) (Store, error) {
	switch kind {
	case "memory":
		return NewMemoryStore(), nil
	case "", "file":
		return NewFileStore(opts.Path), nil
	case "sqlite":
		return newSQLiteStore(opts.Path)
	case "postgres":
		return NewPostgresStore(opts.PostgresDSN), nil
	case "s3":
		return NewS3Store(opts.S3), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
