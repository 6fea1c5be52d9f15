package store

import (
	"fmt"
	"path/filepath"
)

// LexicalBackend selects the lexical index implementation.
type LexicalBackend string

const (
	// LexicalBackendSQLite uses SQLite FTS5 (default). WAL mode allows
	// concurrent multi-process access.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses Bleve v2. BoltDB's exclusive file lock makes
	// it single-process only.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a LexicalIndex using the named backend. The base
// path gets a backend-specific extension (.db for SQLite, .bleve for Bleve).
// An empty base path creates an in-memory index for testing.
func NewLexicalIndex(basePath string, config LexicalConfig, backend string) (LexicalIndex, error) {
	switch backend {
	case string(LexicalBackendSQLite), "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteLexicalIndex(path, config)

	case string(LexicalBackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveLexicalIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// LexicalIndexPath returns the full index path for a backend under dataDir.
func LexicalIndexPath(dataDir, backend string) string {
	basePath := filepath.Join(dataDir, "lexical")
	switch backend {
	case string(LexicalBackendBleve):
		return basePath + ".bleve"
	default:
		return basePath + ".db"
	}
}
