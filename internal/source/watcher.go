package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce пауза после последнего изменения перед сигналом
const DefaultDebounce = 2 * time.Second

// Watcher следит за путем источника и сигналит, когда изменения затихли.
// Для каталога учитываются *.json файлы, для файла базы сам файл и его -wal/-journal.
type Watcher struct {
	logger   *slog.Logger
	changed  chan struct{}
	path     string
	debounce time.Duration
}

// NewWatcher создает наблюдателя за path. debounce <= 0 означает DefaultDebounce.
func NewWatcher(path string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		logger:   logger,
		changed:  make(chan struct{}, 1),
	}
}

// Changed канал сигналов. Сигналы схлопываются: пока предыдущий не прочитан,
// новые не копятся.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

// Run наблюдает до отмены ctx
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.path)
	if err != nil {
		return fmt.Errorf("failed to stat watched path: %w", err)
	}

	dir, match := filepath.Clean(w.path), isExportFile
	if !info.IsDir() {
		dir = filepath.Dir(w.path)
		base := filepath.Base(w.path)
		match = func(name string) bool {
			return name == base || name == base+"-wal" || name == base+"-journal"
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Debug("Watching source", "path", w.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event, match) {
				continue
			}
			// каждое событие откладывает сигнал
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Source watcher error", "error", err)

		case <-timer.C:
			w.logger.Debug("Source changed", "path", w.path)
			select {
			case w.changed <- struct{}{}:
			default:
			}
		}
	}
}

func relevant(event fsnotify.Event, match func(string) bool) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return match(filepath.Base(event.Name))
}
