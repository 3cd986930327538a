package web

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/temirov/ctxd/internal/ignore"
	"github.com/temirov/ctxd/internal/utils"
)

const (
	watchDebounceDelay = 500 * time.Millisecond

	logMessageWatchDisabled    = "ignore file watching disabled"
	logMessageWatchUnavailable = "directory not watchable"
	logMessageWatchRebuild     = "ignore file changed, rebuilding index"
	logFieldPath               = "path"
)

// runWatcher invalidates the index whenever an ignore file in the base
// directory or the repository root changes. Watch failures disable watching
// without stopping the service.
func (server Server) runWatcher(ctx context.Context) error {
	fileWatcher, watcherError := fsnotify.NewWatcher()
	if watcherError != nil {
		server.logger.Warn(logMessageWatchDisabled, zap.Error(watcherError))
		return nil
	}
	defer func() {
		_ = fileWatcher.Close()
	}()

	watchedDirectories := []string{server.config.BasePath}
	if repositoryRoot, found := ignore.FindRepositoryRoot(server.config.BasePath); found && repositoryRoot != server.config.BasePath {
		watchedDirectories = append(watchedDirectories, repositoryRoot)
	}
	watchedCount := 0
	for _, watchedDirectory := range watchedDirectories {
		if addError := fileWatcher.Add(watchedDirectory); addError != nil {
			server.logger.Warn(logMessageWatchUnavailable, zap.String(logFieldPath, watchedDirectory), zap.Error(addError))
			continue
		}
		watchedCount++
	}
	if watchedCount == 0 {
		server.logger.Warn(logMessageWatchDisabled)
		return nil
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, open := <-fileWatcher.Events:
			if !open {
				return nil
			}
			if !isIgnoreFileName(filepath.Base(event.Name)) {
				continue
			}
			debounce = time.After(watchDebounceDelay)
		case <-debounce:
			debounce = nil
			server.logger.Info(logMessageWatchRebuild)
			server.config.Index.ForceInvalidate(server.config.BasePath)
		case watchError, open := <-fileWatcher.Errors:
			if !open {
				return nil
			}
			server.logger.Warn(logMessageWatchDisabled, zap.Error(watchError))
			return nil
		}
	}
}

func isIgnoreFileName(fileName string) bool {
	return fileName == utils.GitIgnoreFileName || fileName == utils.IgnoreFileName
}
