package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Provider names accepted by NewProvider.
const (
	ProviderNone   = "none"
	ProviderBleve  = "bleve"
	ProviderSQLite = "sqlite"
	ProviderMemory = "memory"
)

// NewProvider builds the provider called name, storing indexes under dir.
// "none" and "" return a nil Provider: no index store is configured and
// every build operation becomes a no-op. openTimeout applies to bleve.
func NewProvider(name, dir string, openTimeout time.Duration) (Provider, error) {
	switch strings.ToLower(name) {
	case ProviderNone, "":
		return nil, nil
	case ProviderBleve:
		return NewBleveProvider(dir, openTimeout), nil
	case ProviderSQLite:
		return NewSQLiteProvider(dir), nil
	case ProviderMemory:
		return NewMemoryProvider(), nil
	default:
		return nil, fmt.Errorf("unknown index provider: %s (valid options: bleve, sqlite, memory, none)", name)
	}
}

func validateName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid index name %q", name)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
