package skills

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the registry cache when a skill directory changes,
// so newly dropped SKILL.md files show up without a restart.
type Watcher struct {
	registry *Registry
	fsw      *fsnotify.Watcher
}

// Watch starts watching every existing skill directory. Directories that
// do not exist yet are skipped; the watcher stops when ctx is cancelled.
func Watch(ctx context.Context, registry *Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for _, dir := range registry.dirs {
		if err := fsw.Add(dir.path); err != nil {
			slog.Debug("skill dir not watchable", "dir", dir.path, "error", err)
			continue
		}
		watched++
	}
	slog.Debug("skill watcher started", "dirs", watched)

	w := &Watcher{registry: registry, fsw: fsw}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("skill change detected", "path", event.Name, "op", event.Op.String())
				w.registry.ClearCache()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("skill watcher error", "error", err)
		}
	}
}
