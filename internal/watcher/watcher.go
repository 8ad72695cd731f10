// Package watcher monitors the mapping source file and reports stable,
// materially changed versions for recompilation.
package watcher

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// Event is one observed change to the mapping source. Hash is the BLAKE2b-256
// of the file content, matching the source hash the compiler embeds in
// profiles, so consumers can skip recompiles of unchanged content.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher watches one mapping source file. Change notifications are
// debounced: a version is only reported once the file has been stable for
// the configured interval, so half-written saves never reach the compiler.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration

	mu       sync.Mutex
	dirtyAt  time.Time
	dirty    bool
	lastHash [32]byte
	hasLast  bool

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for the given source file.
func New(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 150 * time.Millisecond
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		path:      abs,
		debounce:  debounce,
		events:    make(chan Event, 4),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of stable source versions.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. The containing directory is watched rather than the
// file itself: editors replace files on save, which drops inode watches.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Prime the hash so an unchanged file at startup does not fire.
	if hash, _, err := HashFile(w.path); err == nil {
		w.lastHash = hash
		w.hasLast = true
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop shuts the watcher down and closes its channels.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.dirty = true
			w.dirtyAt = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.checkStable(now)
		}
	}
}

func (w *Watcher) checkStable(now time.Time) {
	w.mu.Lock()
	ready := w.dirty && now.Sub(w.dirtyAt) >= w.debounce
	w.mu.Unlock()
	if !ready {
		return
	}

	hash, size, err := HashFile(w.path)
	if err != nil {
		select {
		case w.errors <- err:
		default:
		}
		return
	}

	w.mu.Lock()
	// Modified again while hashing: wait for the next stable window.
	if now.Before(w.dirtyAt) {
		w.mu.Unlock()
		return
	}
	w.dirty = false
	unchanged := w.hasLast && hash == w.lastHash
	w.lastHash = hash
	w.hasLast = true
	w.mu.Unlock()

	if unchanged {
		return
	}

	select {
	case w.events <- Event{Path: w.path, Hash: hash, Size: size, Timestamp: now}:
	default:
		// Channel full; the pending reload already covers this version.
	}
}

// HashFile computes the BLAKE2b-256 hash of a file using streaming.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, 0, err
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}
