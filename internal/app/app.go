// Package app wires the catalog engine together from a configuration.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quarry/internal/catalog"
	"quarry/internal/config"
	"quarry/internal/controller"
	"quarry/internal/errors"
	"quarry/internal/learning"
	"quarry/internal/log"
	"quarry/internal/loop"
	"quarry/internal/organize"
	"quarry/internal/registry"
	"quarry/internal/rescan"
	"quarry/internal/search"
	"quarry/internal/sources"
	"quarry/internal/watch"
	"quarry/internal/worker"

	"golang.org/x/text/language"
)

// SourceInfo describes a cacheable source.
type SourceInfo struct {
	Name     string
	Key      string
	Items    int
	LastScan time.Time
}

// App owns every long-lived component.
type App struct {
	Config     *config.Config
	Registry   *registry.Registry
	Learning   *learning.Store
	Searcher   *search.Searcher
	Loop       *loop.Loop
	Pool       *worker.Pool
	Rescanner  *rescan.Rescanner
	Watcher    *watch.Watcher
	Organizer  *organize.Engine
	Controller *controller.Controller

	logger log.Logging

	mu         sync.Mutex
	started    bool
	background bool
	stopLoop   context.CancelFunc
	loopDone   chan struct{}
}

// New builds the components described by cfg. Nothing runs until Start.
func New(cfg *config.Config, logger log.Logging) (*App, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if logger == nil {
		logger = log.Default()
	}
	a := &App{Config: cfg, logger: logger}

	repo, err := learningRepository(cfg.Learning.Backend, cfg.Learning.Path, logger)
	if err != nil {
		return nil, err
	}
	a.Learning = learning.NewStore(repo, logger.With(log.F("component", "learning")))

	tag, err := language.Parse(cfg.Search.Language)
	if err != nil {
		logger.With(log.F("language", cfg.Search.Language), log.F("error", err)).Warn("Unknown search language, using English")
		tag = language.English
	}
	a.Searcher = search.New(a.Learning, logger.With(log.F("component", "search")),
		search.WithLanguage(tag), search.WithCacheSize(cfg.Search.CacheSize))

	a.Loop = loop.New(logger.With(log.F("component", "loop")))
	a.Pool = worker.New(cfg.Rescan.Workers, a.Loop, logger.With(log.F("component", "worker")))
	a.Rescanner = rescan.New(rescan.Options{
		StartupDelay: cfg.Rescan.StartupDelay,
		Period:       cfg.Rescan.Period,
		Campaign:     cfg.Rescan.Campaign,
		IdleDelay:    cfg.Rescan.IdleDelay,
	}, a.Pool, logger.With(log.F("component", "rescan")))
	a.Rescanner.Subscribe(a.rescanned)

	if w, err := watch.New(logger.With(log.F("component", "watch"))); err != nil {
		logger.With(log.F("error", err)).Warn("File watching unavailable")
	} else {
		a.Watcher = w
	}

	a.Organizer = organize.New(organize.Options{
		Collision: cfg.Actions.Collision,
		Backup:    cfg.Actions.Backup,
		DryRun:    cfg.Actions.DryRun,
	}, logger.With(log.F("component", "organize")))

	a.Registry = registry.New(cfg.Cache.Dir, logger.With(log.F("component", "registry")))
	if err := a.populate(); err != nil {
		_ = repo.Close()
		return nil, err
	}

	a.Controller = controller.New(controller.Deps{
		Catalog:  a.Registry,
		Searcher: a.Searcher,
		Learning: a.Learning,
		Worker:   a.Pool,
		Poster:   a.Loop,
		Logger:   logger.With(log.F("component", "controller")),
	})
	return a, nil
}

func learningRepository(backend, path string, logger log.Logging) (learning.Repository, error) {
	switch backend {
	case "sqlite":
		repo, err := learning.NewSQLiteRepository(path, logger.With(log.F("component", "learning")))
		if err != nil {
			return nil, errors.Wrap(err, "failed to open learning database")
		}
		return repo, nil
	case "json", "":
		return learning.NewFileRepository(path), nil
	default:
		return nil, fmt.Errorf("unknown learning backend %q", backend)
	}
}

// populate registers codecs, sources, text sources and actions.
func (a *App) populate() error {
	for typ, fn := range sources.Codecs() {
		a.Registry.RegisterLeafCodec(typ, fn)
	}

	cat := a.Config.Catalog
	for _, d := range cat.Directories {
		if _, err := sources.CompilePatterns(append(append([]string{}, d.Include...), d.Exclude...)); err != nil {
			return fmt.Errorf("directory %s: %w", d.Path, err)
		}
		a.Registry.Add(sources.NewDirectorySource(d.Path, sources.DirectoryOptions{
			Depth:      d.Depth,
			Include:    d.Include,
			Exclude:    d.Exclude,
			ShowHidden: d.ShowHidden,
			Watch:      d.Watch,
		}, a.Watcher))
	}
	if len(cat.Bookmarks) > 0 {
		bms := make([]sources.Bookmark, 0, len(cat.Bookmarks))
		for _, b := range cat.Bookmarks {
			bms = append(bms, sources.Bookmark{Name: b.Name, URL: b.URL})
		}
		a.Registry.Add(sources.NewBookmarkSource(bms))
	}

	if a.Config.Search.TextSources {
		a.Registry.AddTextSources(sources.PlainTextSource{}, sources.URLTextSource{})
	}

	a.Registry.AddActions(
		sources.NewOpenFolderAction(),
		sources.NewRevealAction(),
		sources.NewMoveToAction(a.Organizer),
		sources.NewCopyToAction(a.Organizer),
		sources.NewRenameToAction(a.Organizer),
		sources.NewRescanAction(a.Rescanner),
	)
	return nil
}

// Start restores learning and the catalog, then starts the interactive loop
// and the worker pool. Load failures are logged; a source that failed still
// appears, empty.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("app already started")
	}

	if err := a.Learning.Load(ctx); err != nil {
		logger := a.logger.With(log.F("error", err), log.F("backend", a.Config.Learning.Backend))
		if errors.IsDatabaseError(err) {
			logger.Warn("Learning database unreadable, starting without history")
		} else {
			logger.Warn("Could not load learning data")
		}
	}
	misses, err := a.Registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	if len(misses) > 0 {
		a.logger.With(log.F("rescanned", len(misses))).Info("Sources loaded without cache")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	a.stopLoop = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		_ = a.Loop.Run(loopCtx)
	}()

	if err := a.Pool.Start(ctx); err != nil {
		cancel()
		<-a.loopDone
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	a.started = true
	a.logger.With(log.F("sources", len(a.Registry.Sources()))).Info("Catalog ready")
	return nil
}

// StartBackground attaches live sources to the file watcher and starts the
// periodic rescanner. Start must have succeeded first.
func (a *App) StartBackground(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return fmt.Errorf("app not started")
	}
	if a.background {
		return nil
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(); err != nil {
			a.logger.With(log.F("error", err)).Warn("Could not start file watcher")
		}
	}
	a.Registry.Attach(a.Rescanner)
	a.Rescanner.SetCatalog(a.Registry.Sources())
	if err := a.Rescanner.Start(ctx); err != nil {
		a.Registry.Detach()
		return fmt.Errorf("failed to start rescanner: %w", err)
	}
	a.background = true
	return nil
}

// Shutdown stops the background machinery and flushes learning and the
// source caches. Every step runs even if an earlier one failed; the first
// failure is returned for reporting only.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.background {
		a.Rescanner.Stop()
		a.Registry.Detach()
		a.background = false
	}
	if a.Watcher != nil {
		a.Watcher.Stop()
	}

	var first error
	note := func(msg string, err error) {
		if err == nil {
			return
		}
		a.logger.With(log.F("error", err)).Warn(msg)
		if first == nil {
			first = err
		}
	}

	if a.started {
		a.Pool.Stop()
		a.stopLoop()
		<-a.loopDone
		a.Loop.Stop()
		a.Loop.Drain()
		a.started = false

		note("Could not save learning data", a.Learning.Save(ctx))
		note("Could not save source caches", a.Registry.Save(ctx))
	}
	note("Could not close learning store", a.Learning.Close())
	return first
}

// Call runs fn on the interactive loop and waits for it.
func (a *App) Call(ctx context.Context, fn func()) error {
	return a.Loop.Call(ctx, fn)
}

// Sources lists the toplevel sources with their cache state.
func (a *App) Sources() []SourceInfo {
	var out []SourceInfo
	for _, ix := range a.Registry.Cacheable() {
		leaves, _ := ix.Snapshot()
		out = append(out, SourceInfo{
			Name:     ix.Name(),
			Key:      ix.Key(),
			Items:    len(leaves),
			LastScan: ix.LastScan(),
		})
	}
	return out
}

// Rescan rescans every cacheable source whose name or key matches one of
// names, or all of them when names is empty.
func (a *App) Rescan(ctx context.Context, names ...string) ([]SourceInfo, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var done []SourceInfo
	for _, ix := range a.Registry.Cacheable() {
		if len(want) > 0 && !want[ix.Name()] && !want[ix.Key()] {
			continue
		}
		leaves, err := ix.Rescan(ctx, true)
		if err != nil {
			if ctx.Err() != nil {
				return done, ctx.Err()
			}
			a.logger.With(log.F("source", ix.Name()), log.F("error", err)).Warn("Rescan failed")
			continue
		}
		done = append(done, SourceInfo{Name: ix.Name(), Key: ix.Key(), Items: len(leaves), LastScan: ix.LastScan()})
	}
	if len(want) > 0 && len(done) == 0 {
		return nil, fmt.Errorf("no source matches %v", names)
	}
	return done, nil
}

func (a *App) rescanned(ev rescan.Event) {
	logger := a.logger.With(log.F("source", ev.Source.Name()), log.F("forced", ev.Forced))
	if ev.Err != nil {
		logger.With(log.F("error", ev.Err)).Warn("Background rescan failed")
		return
	}
	logger.Debug("Background rescan finished")
	if a.Controller == nil {
		return
	}
	if err := a.Controller.Reloaded(context.Background(), ev.Source); err != nil {
		logger.With(log.F("error", err)).Warn("Could not refresh panes after rescan")
	}
}

// Find returns the toplevel source with the given name or key.
func (a *App) Find(name string) (catalog.Source, bool) {
	for _, src := range a.Registry.Sources() {
		if src.Name() == name || src.Key() == name {
			return src, true
		}
	}
	return nil, false
}
