package lock

import (
	"path/filepath"
	"sync"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// Coordinator hands out exclusive locks by key.
type Coordinator interface {
	// TryAcquire makes one non-blocking attempt to take key. On contention
	// it returns a handle with Acquired() == false and a nil error.
	TryAcquire(key string) (*Handle, error)
}

// Handle is the result of a TryAcquire call. Release is safe to call on
// every handle, any number of times.
type Handle struct {
	key      string
	acquired bool

	mu      sync.Mutex
	release func() error
}

// Acquired reports whether the lock was granted.
func (h *Handle) Acquired() bool {
	return h != nil && h.acquired
}

// Key returns the lock key.
func (h *Handle) Key() string {
	if h == nil {
		return ""
	}
	return h.key
}

// Release gives the lock back. Only the first call on an acquired handle
// does anything.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	release := h.release
	h.release = nil
	h.mu.Unlock()

	if release == nil {
		return nil
	}
	return release()
}

// FileCoordinator keeps one lock file per key under dir.
//
// File locks alone are not enough inside a single process: on some
// platforms a second flock from the same process succeeds. The held set
// closes that gap.
type FileCoordinator struct {
	dir string

	mu   sync.Mutex
	held map[string]struct{}
}

// NewFileCoordinator returns a coordinator storing lock files in dir.
func NewFileCoordinator(dir string) *FileCoordinator {
	return &FileCoordinator{
		dir:  dir,
		held: make(map[string]struct{}),
	}
}

// Dir returns the lock directory.
func (c *FileCoordinator) Dir() string {
	return c.dir
}

// TryAcquire implements Coordinator.
func (c *FileCoordinator) TryAcquire(key string) (*Handle, error) {
	if key == "" || key != filepath.Base(key) {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "invalid lock key: "+key, nil)
	}

	c.mu.Lock()
	if _, busy := c.held[key]; busy {
		c.mu.Unlock()
		return &Handle{key: key}, nil
	}
	c.held[key] = struct{}{}
	c.mu.Unlock()

	fl := NewFileLock(filepath.Join(c.dir, key))
	ok, err := fl.TryLock()
	if err != nil || !ok {
		c.forget(key)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeLockFailed, "failed to try lock "+key, err)
		}
		return &Handle{key: key}, nil
	}

	return &Handle{
		key:      key,
		acquired: true,
		release: func() error {
			defer c.forget(key)
			if err := fl.Unlock(); err != nil {
				return amerrors.New(amerrors.ErrCodeLockFailed, "failed to release lock "+key, err)
			}
			return nil
		},
	}, nil
}

// Held reports whether this coordinator currently holds key.
func (c *FileCoordinator) Held(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.held[key]
	return ok
}

func (c *FileCoordinator) forget(key string) {
	c.mu.Lock()
	delete(c.held, key)
	c.mu.Unlock()
}
