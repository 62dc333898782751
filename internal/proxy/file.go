package proxy

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/gabe/botpool/internal/logger"
)

// LoadFile reads proxy addresses from path, one per line.
// Blank lines and lines starting with # are skipped.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer f.Close()

	var addrs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addrs = append(addrs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy file: %w", err)
	}
	return addrs, nil
}

// Watch reloads path whenever it changes and adds new addresses to m.
// Removed lines are not dropped from a running pool. The returned channel
// receives the number of proxies added on each reload and is closed when
// ctx is cancelled.
func Watch(ctx context.Context, path string, m *Manager, log logger.Logger) (<-chan int, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory, editors replace the file on save
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	added := make(chan int, 1)
	name := filepath.Base(path)

	go func() {
		defer watcher.Close()
		defer close(added)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				addrs, err := LoadFile(path)
				if err != nil {
					log.Warn("Failed to reload proxy file", logger.String("path", path), logger.Error(err))
					continue
				}
				n := m.Add(addrs...)
				if n > 0 {
					log.Info("Proxy pool grew", logger.Int("added", n), logger.Int("size", m.Size()))
				}
				select {
				case added <- n:
				case <-ctx.Done():
					return
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Proxy file watcher error", logger.Error(err))
			}
		}
	}()

	return added, nil
}
