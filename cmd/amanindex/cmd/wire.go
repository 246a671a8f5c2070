package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Aman-CERP/amanindex/internal/collector"
	"github.com/Aman-CERP/amanindex/internal/config"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/lock"
	"github.com/Aman-CERP/amanindex/internal/status"
	"github.com/Aman-CERP/amanindex/internal/store"
)

// Layout of the data directory.
const (
	indexesDir   = "indexes"
	statusDir    = "status"
	locksDir     = "locks"
	manifestsDir = "manifests"
)

// runtime is everything a command needs to talk to the project's indexes.
type runtime struct {
	root     string
	dataDir  string
	cfg      *config.Config
	provider store.Provider
	registry *collector.Registry
	orch     *index.Orchestrator
}

// openRuntime loads the project config under opts.dir and wires the
// provider, status store, lock coordinator and collectors into an
// orchestrator.
func openRuntime(ctx context.Context, opts *rootOptions, onSegment index.SegmentFunc) (*runtime, error) {
	root, err := config.FindProjectRoot(opts.dir)
	if err != nil {
		return nil, amerrors.ConfigError("failed to resolve project directory", err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := opts.applyLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	rt := &runtime{
		root:    root,
		dataDir: cfg.ResolveDataDir(root),
		cfg:     cfg,
	}

	rt.provider, err = store.NewProvider(cfg.Provider, filepath.Join(rt.dataDir, indexesDir), cfg.StoreOpenTimeout)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeProviderInvalid, "failed to open index provider", err).
			WithDetail("provider", cfg.Provider)
	}

	backend, err := newStatusBackend(ctx, cfg, rt.dataDir)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.registry, err = newRegistry(cfg, root, rt.dataDir)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.orch, err = index.NewOrchestrator(index.Options{
		Provider:    rt.provider,
		Collectors:  rt.registry,
		Locks:       lock.NewFileCoordinator(filepath.Join(rt.dataDir, locksDir)),
		Status:      status.NewStore(backend, cfg.Environment),
		Environment: cfg.Environment,
		OnSegment:   onSegment,
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the index provider.
func (r *runtime) Close() error {
	if r.provider == nil {
		return nil
	}
	return r.provider.Close()
}

func newStatusBackend(ctx context.Context, cfg *config.Config, dataDir string) (status.Backend, error) {
	switch cfg.Status.Backend {
	case config.StatusBackendMinio:
		m := cfg.Status.Minio
		backend, err := status.NewMinioBackend(status.MinioOptions{
			Endpoint:  m.Endpoint,
			Bucket:    m.Bucket,
			Prefix:    m.Prefix,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	default:
		return status.NewFileBackend(filepath.Join(dataDir, statusDir)), nil
	}
}

// newRegistry builds one collector per configured scope. Scope roots are
// resolved against the project root.
func newRegistry(cfg *config.Config, root, dataDir string) (*collector.Registry, error) {
	registry, err := collector.NewRegistry()
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, sc := range cfg.Scopes {
		sc = sc.WithDefaults()

		scopeRoot := sc.Root
		if !filepath.IsAbs(scopeRoot) {
			scopeRoot = filepath.Join(root, scopeRoot)
		}

		c, err := collector.NewFilesystemCollector(collector.FilesystemOptions{
			Scope:        sc.Name,
			Root:         scopeRoot,
			Include:      sc.Include,
			Exclude:      sc.Exclude,
			NoGitignore:  sc.NoGitignore,
			SegmentSize:  sc.SegmentSize,
			MaxFileSize:  sc.MaxFileSize,
			ManifestPath: filepath.Join(dataDir, manifestsDir, status.Key(sc.Name, cfg.Environment)+".db"),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("scope %q: %w", sc.Name, err))
			continue
		}
		if err := registry.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, amerrors.ConfigError("invalid scope configuration", errors.Join(errs...))
	}
	return registry, nil
}
