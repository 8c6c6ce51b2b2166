package internal

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	tt "github.com/gnolang/closelint/internal/types"
)

// settle is how long a file must stay quiet before it is linted again.
const settle = 100 * time.Millisecond

// ReportFunc receives the issues of a re-linted file.
type ReportFunc func(filename string, issues []tt.Issue)

// Watch re-lints Go files under dirs whenever they change, until ctx is done.
func (e *Engine) Watch(ctx context.Context, dirs []string, report ReportFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != dir && (strings.HasPrefix(d.Name(), ".") || e.isIgnoredPath(path)) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		})
		if err != nil {
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}
	e.logger.Info("watching for changes", zap.Strings("dirs", dirs))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if name, ok := e.lintable(event); ok {
				pending[name] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", zap.Error(err))
		case now := <-ticker.C:
			for name, changed := range pending {
				if now.Sub(changed) < settle {
					continue
				}
				delete(pending, name)
				e.handleFileChange(ctx, name, report)
			}
		}
	}
}

func (e *Engine) lintable(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return "", false
	}
	if !strings.HasSuffix(event.Name, ".go") || e.isIgnoredPath(event.Name) {
		return "", false
	}
	return event.Name, true
}

func (e *Engine) handleFileChange(ctx context.Context, filename string, report ReportFunc) {
	issues, err := e.Run(ctx, filename)
	if err != nil {
		e.logger.Error("error linting changed file", zap.String("file", filename), zap.Error(err))
		return
	}
	report(filename, issues)
}
