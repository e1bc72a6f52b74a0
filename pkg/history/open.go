package history

import (
	"github.com/pkg/errors"
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendYAML   Backend = "yaml"
	BackendSQLite Backend = "sqlite"
)

// Open builds the store for backend. File backends need a path.
func Open(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewInMemoryStore(), nil
	case BackendYAML:
		return NewYAMLFileStore(path)
	case BackendSQLite:
		dsn, err := SQLiteDSNForFile(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	default:
		return nil, errors.Errorf("unknown history backend %q", backend)
	}
}
