// Package file is a config.Source backed by a single file on disk,
// watched for changes via fsnotify.
package file

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type source struct {
	path string
}

// NewSource returns a config.Source reading path.
func NewSource(path string) *source {
	return &source{path: path}
}

func (s *source) Load() ([]byte, error) {
	return os.ReadFile(s.path)
}

// Watch installs an fsnotify watch on the file's parent directory
// (editors commonly replace-then-rename, which doesn't fire a Write
// event on the original inode) and invokes onChange for any event
// naming this file.
func (s *source) Watch(onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	name := filepath.Base(s.path)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	stop := func() {
		close(done)
		watcher.Close()
	}
	return stop, nil
}
