package registry

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CredentialReloader watches a mounted service-account/credentials file
// for changes and keeps the latest contents in memory. It is
// best-effort: cmd/enginectl reads Current() once, before any service
// is deployed, so a rotation never interrupts work already in flight;
// a rotation after that point does not reach the running request.
type CredentialReloader struct {
	mu       sync.RWMutex
	contents []byte
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// WatchCredentialFile reads path once and starts watching its parent
// directory (secret mounts typically swap a symlink rather than
// writing the file in place, so the directory, not the file, is what
// emits events).
func WatchCredentialFile(path string) (*CredentialReloader, error) {
	initial, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	r := &CredentialReloader{contents: initial, watcher: w, done: make(chan struct{})}
	go r.run(path)
	return r, nil
}

func (r *CredentialReloader) run(path string) {
	base := filepath.Base(path)
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if b, err := os.ReadFile(path); err == nil {
				r.mu.Lock()
				r.contents = b
				r.mu.Unlock()
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
		case <-r.done:
			return
		}
	}
}

// Current returns the most recently observed file contents.
func (r *CredentialReloader) Current() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]byte, len(r.contents))
	copy(out, r.contents)
	return out
}

func (r *CredentialReloader) Close() error {
	close(r.done)
	return r.watcher.Close()
}
