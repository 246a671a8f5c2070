package collector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketFiles = []byte("files")

// fileEntry is what the manifest remembers about an indexed file.
type fileEntry struct {
	ModTime int64 `json:"mod_time"`
	Size    int64 `json:"size"`
}

// manifest records which files a scope's index holds, so an update can
// tell which files disappeared since the last build.
type manifest struct {
	db *bbolt.DB
}

func openManifest(path string) (*manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create manifest bucket: %w", err)
	}
	return &manifest{db: db}, nil
}

func (m *manifest) Close() error {
	return m.db.Close()
}

func (m *manifest) get(path string) (fileEntry, bool) {
	var (
		e  fileEntry
		ok bool
	)
	_ = m.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(path))
		if data == nil {
			return nil
		}
		ok = json.Unmarshal(data, &e) == nil
		return nil
	})
	return e, ok
}

// missing returns manifest paths for which keep reports false.
func (m *manifest) missing(keep func(path string) bool) ([]string, error) {
	var gone []string
	err := m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, _ []byte) error {
			if p := string(k); !keep(p) {
				gone = append(gone, p)
			}
			return nil
		})
	})
	return gone, err
}

// apply records puts and removes in one transaction.
func (m *manifest) apply(puts map[string]fileEntry, removes []string) error {
	if len(puts) == 0 && len(removes) == 0 {
		return nil
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		for path, e := range puts {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(path), data); err != nil {
				return err
			}
		}
		for _, path := range removes {
			if err := b.Delete([]byte(path)); err != nil {
				return err
			}
		}
		return nil
	})
}
