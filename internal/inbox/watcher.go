// Package inbox installs tile databases dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/geo"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must stay quiet before it is installed.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrMissingDir indicates a watcher configured without a directory.
	ErrMissingDir = errors.New("inbox: directory is required")
	// ErrMissingInstaller indicates a watcher configured without an installer.
	ErrMissingInstaller = errors.New("inbox: installer is required")

	tileFilePattern = regexp.MustCompile(`^tile_(\d+)_(\d+)\.db$`)
)

// Installer incorporates one tile database file. Implementations take
// ownership of the file.
type Installer interface {
	InstallSingleTileDatabase(ctx context.Context, tileFilePath string, tile geo.Tile) error
}

// ParseTileFileName returns the tile named by "tile_<x>_<y>.db".
func ParseTileFileName(name string) (geo.Tile, bool) {
	match := tileFilePattern.FindStringSubmatch(name)
	if match == nil {
		return geo.Tile{}, false
	}
	x, errX := strconv.Atoi(match[1])
	y, errY := strconv.Atoi(match[2])
	if errX != nil || errY != nil {
		return geo.Tile{}, false
	}
	tile, err := geo.NewTile(x, y)
	if err != nil {
		return geo.Tile{}, false
	}
	return tile, true
}

// TileFileName is the inverse of ParseTileFileName.
func TileFileName(tile geo.Tile) string {
	return fmt.Sprintf("tile_%d_%d.db", tile.X, tile.Y)
}

type Config struct {
	Dir       string
	Debounce  time.Duration
	Installer Installer
	Logger    *zap.Logger
}

// Watcher installs tile files as they appear in its directory. Files already
// present when Run starts are installed first. Installs run one at a time on
// the Run goroutine.
type Watcher struct {
	dir       string
	debounce  time.Duration
	installer Installer
	logger    *zap.Logger

	timersMu sync.Mutex
	timers   map[string]*time.Timer
	ready    chan string
	done     chan struct{}
}

func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, ErrMissingDir
	}
	if cfg.Installer == nil {
		return nil, ErrMissingInstaller
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:       filepath.Clean(cfg.Dir),
		debounce:  debounce,
		installer: cfg.Installer,
		logger:    logger,
		timers:    make(map[string]*time.Timer),
		ready:     make(chan string, 16),
		done:      make(chan struct{}),
	}, nil
}

// Run watches the directory until ctx is cancelled. It returns nil on
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)
	defer w.stopTimers()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox %s: %w", w.dir, err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	defer fsWatcher.Close()
	if err := fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch inbox %s: %w", w.dir, err)
	}
	w.logger.Info("inbox watcher started", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	existing, err := w.pendingFiles()
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.install(ctx, path)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped", zap.String("dir", w.dir))
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case watchErr, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(watchErr))
		case path := <-w.ready:
			w.install(ctx, path)
		}
	}
}

func (w *Watcher) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("list inbox %s: %w", w.dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := ParseTileFileName(entry.Name()); ok {
			paths = append(paths, filepath.Join(w.dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	path := filepath.Clean(event.Name)
	if _, ok := ParseTileFileName(filepath.Base(path)); !ok {
		return
	}

	w.timersMu.Lock()
	defer w.timersMu.Unlock()
	if timer, exists := w.timers[path]; exists {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.timersMu.Lock()
		delete(w.timers, path)
		w.timersMu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) install(ctx context.Context, path string) {
	tile, ok := ParseTileFileName(filepath.Base(path))
	if !ok {
		return
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("inbox file not readable", zap.String("file", path), zap.Error(err))
		}
		return
	}

	w.logger.Info("installing inbox file", zap.String("file", path), zap.Stringer("tile", tile))
	if err := w.installer.InstallSingleTileDatabase(ctx, path, tile); err != nil {
		w.logger.Warn("inbox file not installed", zap.String("file", path), zap.Stringer("tile", tile), zap.Error(err))
	}
}
