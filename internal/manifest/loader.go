package manifest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	json "github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"
)

// Env var a deployment can set to add a filesystem root ahead of any
// configured well-known roots, mirroring AI_PROTOCOL_PATH in the original
// Python client.
const envManifestPath = "AI_PROTOCOL_PATH"

// LoaderConfig controls resolution order and validation strictness.
type LoaderConfig struct {
	// Roots are filesystem directories searched in order, after the
	// in-process registry and AI_PROTOCOL_PATH, before RemoteURL.
	Roots []string
	// RemoteURL, if set, is queried as a last resort: RemoteURL/<id>.json.
	RemoteURL string
	// StrictStreaming is passed through to Validate.
	StrictStreaming bool
	// CacheTTL controls how long a resolved manifest is cached before the
	// Loader will re-resolve it (hot reload invalidates this early).
	CacheTTL time.Duration
}

// DefaultLoaderConfig returns sensible defaults: no extra roots, a five
// minute cache, strict streaming validation on.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		StrictStreaming: true,
		CacheTTL:        5 * time.Minute,
	}
}

// Loader resolves a provider ID to a validated ProtocolManifest, trying the
// registry, then AI_PROTOCOL_PATH, then configured roots, then an optional
// remote URL. Within a filesystem root it tries the v2-dist path first,
// then the v1 source layout.
type Loader struct {
	registry   *Registry
	cfg        LoaderConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	cache   *cache.Cache
	watcher *fsnotify.Watcher
}

// NewLoader creates a Loader backed by registry (may be nil) and cfg.
func NewLoader(registry *Registry, cfg LoaderConfig, logger *slog.Logger) *Loader {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		registry:   registry,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		cache:      cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Load resolves and validates the manifest for id, in resolution order:
// in-process registry, AI_PROTOCOL_PATH, configured roots, remote URL.
func (l *Loader) Load(ctx context.Context, id string) (*ProtocolManifest, error) {
	if m, ok := l.registry.Get(id); ok {
		return m, nil
	}

	if cached, ok := l.cache.Get(id); ok {
		return cached.(*ProtocolManifest), nil
	}

	roots := l.resolutionRoots()
	for _, root := range roots {
		m, err := l.tryRoot(root, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			l.cache.SetDefault(id, m)
			return m, nil
		}
	}

	if l.cfg.RemoteURL != "" {
		m, err := l.fetchRemote(ctx, id)
		if err != nil {
			return nil, err
		}
		l.cache.SetDefault(id, m)
		return m, nil
	}

	return nil, fmt.Errorf("manifest: no manifest found for provider %q", id)
}

func (l *Loader) resolutionRoots() []string {
	var roots []string
	if envPath := os.Getenv(envManifestPath); envPath != "" {
		roots = append(roots, filepath.SplitList(envPath)...)
	}
	roots = append(roots, l.cfg.Roots...)
	return roots
}

func (l *Loader) tryRoot(root, id string) (*ProtocolManifest, error) {
	candidates := []string{
		filepath.Join(root, "dist", "v1", "providers", id+".json"),
		filepath.Join(root, "v1", "providers", id+".yaml"),
		filepath.Join(root, "v1", "providers", id+".yml"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("manifest: reading %s: %w", path, err)
		}
		m, err := l.parse(path, data)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, nil
}

func (l *Loader) fetchRemote(ctx context.Context, id string) (*ProtocolManifest, error) {
	url := l.cfg.RemoteURL + "/" + id + ".json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("manifest: building remote request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest: remote %s returned status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("manifest: reading remote body: %w", err)
	}
	return l.parse(url, data)
}

func (l *Loader) parse(path string, data []byte) (*ProtocolManifest, error) {
	m := &ProtocolManifest{}
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, m)
	default:
		err = json.Unmarshal(data, m)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: parsing %s: %w", path, err)
	}
	if err := m.Validate(l.cfg.StrictStreaming); err != nil {
		return nil, fmt.Errorf("manifest: validating %s: %w", path, err)
	}
	return m, nil
}

// Invalidate drops id from the cache, forcing the next Load to re-resolve.
func (l *Loader) Invalidate(id string) {
	l.cache.Delete(id)
}

// Watch starts an fsnotify watch over every configured filesystem root and
// invalidates the corresponding cache entry on change, debounced by 500ms
// the way internal/config's Manager debounces config reloads.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("manifest: creating watcher: %w", err)
	}
	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	for _, root := range l.cfg.Roots {
		providerDir := filepath.Join(root, "v1", "providers")
		if _, err := os.Stat(providerDir); err == nil {
			if err := watcher.Add(providerDir); err != nil {
				l.logger.Warn("manifest watch: failed to watch directory", "dir", providerDir, "error", err)
			}
		}
	}

	go l.watchLoop(ctx, watcher)
	return nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	const debounceDelay = 500 * time.Millisecond
	timers := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			id := providerIDFromPath(event.Name)
			if id == "" {
				continue
			}
			if t, exists := timers[id]; exists {
				t.Stop()
			}
			timers[id] = time.AfterFunc(debounceDelay, func() {
				l.Invalidate(id)
				l.logger.Info("manifest reload triggered by filesystem change", "provider", id)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("manifest watcher error", "error", err)
		}
	}
}

func providerIDFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return ""
	}
	return base[:len(base)-len(ext)]
}

// Close stops any active filesystem watch.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
