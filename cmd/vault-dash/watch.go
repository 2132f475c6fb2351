package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// fsChangeMsg is sent when the database file (or its WAL sidecars)
// changes on disk.
type fsChangeMsg struct{}

// watchDBFile watches the database file's directory and fires on writes
// to the db file or its -wal/-shm sidecars. Returns nil when watching is
// unavailable; the dashboard falls back to polling.
func watchDBFile(dbPath string) tea.Cmd {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); err != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify: failed to create watcher: %v (falling back to polling)", err)
		return nil
	}
	// SQLite in WAL mode writes the sidecar files, not the db file, on
	// most commits; watch the whole directory and filter by prefix.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		log.Printf("fsnotify: failed to watch %s: %v (falling back to polling)", dir, err)
		return nil
	}

	base := filepath.Base(dbPath)
	return func() tea.Msg {
		defer watcher.Close()

		debounce := time.NewTimer(0)
		if !debounce.Stop() {
			<-debounce.C
		}
		defer debounce.Stop()

		armed := false
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !strings.HasPrefix(filepath.Base(event.Name), base) {
					continue
				}
				if !debounce.Stop() && armed {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(100 * time.Millisecond)
				armed = true

			case <-debounce.C:
				return fsChangeMsg{}

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				log.Printf("fsnotify: watcher error: %v", err)
				return nil
			}
		}
	}
}
