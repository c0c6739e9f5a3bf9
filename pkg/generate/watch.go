package generate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/rulepool/pkg/log"
)

// Subscribe registers ch to receive events from [Generator.Watch]. Sends
// block until ch is read or the watch context is done.
func (g *Generator) Subscribe(ch chan<- Event) {
	g.mu.Lock()
	g.listeners = append(g.listeners, ch)
	g.mu.Unlock()
}

func (g *Generator) broadcast(ctx context.Context, evt Event) {
	log.WithContext(ctx).DebugContext(ctx, "broadcasting event",
		slog.String("event", fmt.Sprintf("%T", evt)),
	)

	g.mu.Lock()
	listeners := append([]chan<- Event{}, g.listeners...)
	g.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- evt:
		case <-ctx.Done():
			return
		}
	}
}

// Watch generates modePath into outDir, then regenerates whenever the mode
// file or the pool file changes, until ctx is done. A pool file change
// reloads the rule store first. Results are delivered to subscribers as
// [EventEnd] events; failed runs do not stop the watch.
func (g *Generator) Watch(ctx context.Context, modePath, outDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() {
		err := watcher.Close()
		if err != nil {
			slog.Error("close watcher", slog.Any("err", err))
		}
	}()

	modeFile, err := filepath.Abs(modePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", modePath, err)
	}

	watched := map[string]struct{}{modeFile: {}}

	var poolFile string
	if g.poolFile != "" {
		poolFile, err = filepath.Abs(g.poolFile)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", g.poolFile, err)
		}

		watched[poolFile] = struct{}{}
	}

	// Watch directories so that files replaced by rename are still seen.
	dirs := map[string]struct{}{}
	for file := range watched {
		dirs[filepath.Dir(file)] = struct{}{}
	}

	for dir := range dirs {
		err = watcher.Add(dir)
		if err != nil {
			return fmt.Errorf("add path to watcher: %w", err)
		}
	}

	log.WithContext(ctx).DebugContext(ctx, "added file watchers",
		slog.String("mode", modeFile),
		slog.Int("count", len(dirs)),
	)

	g.run(ctx, modePath, outDir, "")

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if _, isWatched := watched[evt.Name]; !isWatched {
				continue
			}

			// Ignore events that are not related to file content changes.
			if evt.Has(fsnotify.Chmod) {
				continue
			}

			if evt.Name == poolFile {
				err := g.store.Load(ctx)
				if err != nil {
					g.broadcast(ctx, NewEventEnd(ctx, newResult(g.dryRun), fmt.Errorf("reload rule pool: %w", err)))

					continue
				}
			}

			g.modes.ClearCache()
			g.templates.ClearCache()
			g.run(ctx, modePath, outDir, evt.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			g.broadcast(ctx, NewEventEnd(ctx, newResult(g.dryRun), err))
		}
	}
}

func (g *Generator) run(ctx context.Context, modePath, outDir, trigger string) {
	ctx, span := g.tracer.Start(ctx, "watch-run", trace.WithAttributes(
		attribute.String("trigger", trigger),
	))
	defer span.End()

	g.broadcast(ctx, NewEventStart(ctx, trigger))

	res, err := g.Generate(ctx, modePath, outDir)
	g.broadcast(ctx, NewEventEnd(ctx, res, err))
}
