// Package watch reports edits to local collection files so that status can
// be recomputed as the inventory changes.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// Op is the kind of change observed on a collection file.
type Op string

// Observed operations.
const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// Change is a settled edit to one collection file.
type Change struct {
	Kind entity.Kind
	Path string
	Op   Op
	At   time.Time
}

// Config holds the watcher tuning.
type Config struct {
	// Debounce is how long a file must stay quiet before its change is
	// reported. Editors often write a file several times in a row.
	Debounce   time.Duration
	BufferSize int
}

// DefaultConfig returns the default watcher tuning.
func DefaultConfig() Config {
	return Config{
		Debounce:   250 * time.Millisecond,
		BufferSize: 32,
	}
}

// Watcher watches one data directory for changes to the collection files
// of a set of kinds.
type Watcher struct {
	fsw   *fsnotify.Watcher
	dir   string
	cfg   Config
	files map[string]entity.Kind

	changes chan Change
	errs    chan error

	pendingMu sync.Mutex
	pending   map[entity.Kind]Change

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a watcher on dir for the given kinds. The directory must exist.
func New(dir string, kinds []entity.Kind, cfg Config) (*Watcher, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no kinds to watch")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultConfig().Debounce
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to watch %s: not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	files := make(map[string]entity.Kind, len(kinds))
	for _, k := range kinds {
		files[k.Collection()+".json"] = k
	}

	return &Watcher{
		fsw:     fsw,
		dir:     dir,
		cfg:     cfg,
		files:   files,
		changes: make(chan Change, cfg.BufferSize),
		errs:    make(chan error, cfg.BufferSize),
		pending: make(map[entity.Kind]Change),
	}, nil
}

// Start begins watching. The directory itself is watched rather than the
// files, so atomic replace-by-rename writes are seen. Start stops when ctx
// is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if w.cancel != nil {
		return fmt.Errorf("watcher already started")
	}

	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.readEvents(ctx)
	go w.flushLoop(ctx)
	return nil
}

// Changes returns settled changes, at most one per kind per quiet period.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns errors reported by the underlying watcher.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher and closes both channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()

	close(w.changes)
	close(w.errs)
	return err
}

func (w *Watcher) readEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			kind, ok := w.kindOf(ev.Name)
			if !ok {
				continue
			}
			op := opOf(ev.Op)
			if op == "" {
				continue
			}

			w.pendingMu.Lock()
			w.pending[kind] = Change{Kind: kind, Path: ev.Name, Op: op, At: time.Now()}
			w.pendingMu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

func (w *Watcher) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

// flush emits every pending change that has been quiet for the debounce
// period. A full channel drops the change; the consumer re-reads the whole
// collection anyway.
func (w *Watcher) flush(now time.Time) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	for kind, c := range w.pending {
		if now.Sub(c.At) < w.cfg.Debounce {
			continue
		}
		delete(w.pending, kind)
		select {
		case w.changes <- c:
		default:
		}
	}
}

// kindOf maps a path to the kind whose collection it holds. Temporary
// files written during atomic replacement start with a dot and never match.
func (w *Watcher) kindOf(path string) (entity.Kind, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return "", false
	}
	kind, ok := w.files[name]
	return kind, ok
}

func opOf(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return ""
	}
}
