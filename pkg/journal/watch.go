package journal

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch follows changes made to the directory by other programs until ctx
// is done. Writes made by the journal itself are ignored.
func (j *Journal) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(j.Directory); err != nil {
		watcher.Close()
		return fmt.Errorf("unable to watch %s: %w", j.Directory, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if err := j.handle(event); err != nil {
					log.Printf("journal: %s: %v", event, err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("journal: watch error: %v", err)
			}
		}
	}()
	return nil
}

func (j *Journal) handle(event fsnotify.Event) error {
	if match, _ := filepath.Match(StorageGlob, filepath.Base(event.Name)); !match {
		return nil
	}
	if Debug {
		log.Printf("journal: event %v", event)
	}
	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		return j.changed(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return j.removed(event.Name)
	}
	return nil
}

// changed loads a file written by someone else and replaces or places its
// entry.
func (j *Journal) changed(path string) error {
	// our own writes record their mtime before releasing the edit lock
	j.edit.Lock()
	defer j.edit.Unlock()

	finfo, err := os.Stat(path)
	if err != nil {
		// gone again before we got to it
		return nil
	}
	j.mu.Lock()
	known, ok := j.mtimes[path]
	j.mu.Unlock()
	if ok && known.Equal(finfo.ModTime()) {
		return nil
	}

	e, err := LoadFromFile(path)
	if err != nil {
		return err
	}
	j.decorate(e)

	j.mu.Lock()
	c, old, found := j.locateLocked(e.ID)
	j.mu.Unlock()
	if found && old.CreatedAt.Equal(e.CreatedAt) {
		j.remember(e, finfo.ModTime())
		j.replace(c, e)
		return nil
	}
	if found {
		// the date changed, so the entry changes place
		j.removeLocated(c, old)
	}
	j.remember(e, finfo.ModTime())

	j.mu.Lock()
	c, placed, newSection := j.insertLocked(e)
	j.mu.Unlock()
	j.place(c, placed, newSection)
	return nil
}

func (j *Journal) remember(e *Entry, mtime time.Time) {
	j.mu.Lock()
	j.files[e.ID] = e
	j.mtimes[e.path] = mtime
	j.mu.Unlock()
}

func (j *Journal) removed(path string) error {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	j.edit.Lock()
	defer j.edit.Unlock()

	j.mu.Lock()
	c, e, found := j.locateLocked(id)
	stored := found && e.path == path
	j.mu.Unlock()
	if !stored {
		return nil
	}
	j.removeLocated(c, e)
	return nil
}
