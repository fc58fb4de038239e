package farm

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ReadServerList reads one server name per line. Blank lines and lines
// starting with '#' are skipped.
func ReadServerList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var servers []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		servers = append(servers, line)
	}
	return servers, scanner.Err()
}

// ConnectServerList connects every listed server not already connected and
// returns how many new sessions were opened
func (rf *RenderFarm) ConnectServerList(path string) int {
	servers, err := ReadServerList(path)
	if err != nil {
		rf.logger.Errorf("Unable to read server list %s: %v", path, err)
		return 0
	}
	connected := 0
	for _, server := range servers {
		if rf.Connected(server) {
			continue
		}
		if err := rf.Connect(server); err == nil {
			connected++
		}
	}
	return connected
}

// WatchServerList connects the servers listed in path and keeps watching
// the file, connecting new entries whenever it changes, until ctx is done.
// Entries removed from the file stay connected.
func (rf *RenderFarm) WatchServerList(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// editors replace files by rename, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	rf.ConnectServerList(path)

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					rf.logger.Infof("Server list %s changed", path)
					rf.ConnectServerList(path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				rf.logger.Warningf("Server list watcher: %v", err)
			}
		}
	}()
	return nil
}
