package runlog

import "fmt"

// Options selects and tunes a store backend.
type Options struct {
	// Backend is "jsonl", "sqlite" or "memory".
	Backend string
	Path    string
	// MaxSizeMB enables rotation of the jsonl backend when positive.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Open creates the store described by o.
func Open(o Options) (Store, error) {
	switch o.Backend {
	case "jsonl":
		if o.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(o.Path, o.MaxSizeMB, o.MaxBackups, o.MaxAgeDays)
		}
		return NewJSONLStore(o.Path)
	case "sqlite":
		return NewSQLiteStore(o.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown run log backend %q", o.Backend)
	}
}
