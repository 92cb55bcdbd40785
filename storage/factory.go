package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrUnsupportedDriver is returned by Open for an unknown driver name.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Config carries driver construction parameters.
//
// Path is the database file for the sqlite driver; for the file-backed
// drivers its parent directory becomes the data directory.
type Config struct {
	Path string
}

// OpenFunc constructs and initializes a Store from a Config.
type OpenFunc func(cfg Config) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]OpenFunc{}
)

// Register makes a driver available under the given name, replacing any
// previous registration for that name.
func Register(name string, fn OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[strings.ToLower(name)] = fn
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs and initializes the named driver. The name is matched
// case-insensitively against the registry.
func Open(driver string, cfg Config) (Store, error) {
	driversMu.RLock()
	fn, ok := drivers[strings.ToLower(driver)]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)",
			ErrUnsupportedDriver, driver, strings.Join(Drivers(), ", "))
	}
	return fn(cfg)
}

func init() {
	Register("sqlite", func(cfg Config) (Store, error) {
		return OpenSqlite(cfg.Path)
	})
	Register("json", func(cfg Config) (Store, error) {
		store := NewJSONStore(dataDir(cfg.Path))
		if err := store.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	})
	Register("csv", func(cfg Config) (Store, error) {
		store := NewCSVStore(dataDir(cfg.Path))
		if err := store.Initialize(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	})
}

// dataDir maps a configured database path to the directory the
// file-backed drivers use. A path like data/chat.db yields data.
func dataDir(path string) string {
	if path == "" {
		return "data"
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return "data"
	}
	return dir
}
