package preprocess

import (
	"path/filepath"
	"sync"
)

// dirLocks serializes extraction runs that write into the same directory.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var outputDirLocks = &dirLocks{locks: make(map[string]*sync.Mutex)}

func (d *dirLocks) Lock(dir string) (unlock func()) {
	key, err := filepath.Abs(dir)
	if err != nil {
		key = filepath.Clean(dir)
	}

	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &sync.Mutex{}
		d.locks[key] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}
