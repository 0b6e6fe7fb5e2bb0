// Package controller implements the pane state machine: three cursors into
// the catalog (item, action, indirect object), the two/three-pane mode, and
// the single place where a selection becomes an activation.
package controller

import (
	"context"
	"fmt"
	"sync"

	"quarry/internal/catalog"
	"quarry/internal/errors"
	"quarry/internal/log"
	"quarry/internal/search"
	"quarry/internal/worker"
)

// Catalog is what the controller needs from the source registry.
type Catalog interface {
	Root() catalog.Source
	RootForTypes(types []catalog.LeafType) catalog.Source
	TextSources() []catalog.TextSource
	ActionsFor(leaf catalog.Leaf) []catalog.Action
	Canonical(src catalog.Source) catalog.Source
}

// Searcher runs one aggregation.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// Recorder receives learning hits.
type Recorder interface {
	RecordHit(key, query string)
}

// Submitter runs asynchronous actions in the background.
type Submitter interface {
	Submit(job worker.Job) (string, error)
}

// Poster delivers a function onto the interactive loop.
type Poster interface {
	Post(fn func()) bool
}

// Deps are the collaborators of a Controller. Worker and Poster may be nil:
// asynchronous actions then run inline and events are delivered on the
// calling goroutine.
type Deps struct {
	Catalog  Catalog
	Searcher Searcher
	Learning Recorder
	Worker   Submitter
	Poster   Poster
	Logger   log.Logging
}

// Controller orchestrates the panes.
type Controller struct {
	catalog  Catalog
	searcher Searcher
	learning Recorder
	worker   Submitter
	poster   Poster
	logger   log.Logging

	mu      sync.Mutex
	panes   [3]*pane
	mode    Mode
	current PaneID

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates a controller browsing the catalog root.
func New(deps Deps) *Controller {
	c := &Controller{
		catalog:  deps.Catalog,
		searcher: deps.Searcher,
		learning: deps.Learning,
		worker:   deps.Worker,
		poster:   deps.Poster,
		logger:   deps.Logger,
	}
	for i := range c.panes {
		c.panes[i] = &pane{Pane: Pane{ID: PaneID(i)}}
	}
	c.panes[SourcePane].Source = c.catalog.Root()
	return c
}

// AddObserver subscribes o to controller events.
func (c *Controller) AddObserver(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// Mode returns the current pane mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Current returns the focused pane.
func (c *Controller) Current() PaneID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Pane returns a snapshot of pane id.
func (c *Controller) Pane(id PaneID) Pane {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panes[id].snapshot()
}

// Search runs key against pane id and selects the best match. A later
// Search on the same pane supersedes this one: it is cancelled and returns
// errors.ErrSuperseded without touching the pane. Searches on different
// panes are independent.
func (c *Controller) Search(ctx context.Context, id PaneID, key string) (*search.Result, error) {
	c.mu.Lock()
	if id == ObjectPane && c.mode != ThreePane {
		c.mu.Unlock()
		return nil, errors.New("object pane is not active")
	}
	p := c.panes[id]
	p.abort()
	ctx, cancel := context.WithCancel(ctx)
	gen := p.gen
	p.cancel = cancel
	req := c.request(id, key)
	c.mu.Unlock()
	defer cancel()

	res, err := c.searcher.Search(ctx, req)

	c.mu.Lock()
	if p.gen != gen {
		c.mu.Unlock()
		return nil, errors.ErrSuperseded
	}
	p.cancel = nil
	if err != nil {
		c.mu.Unlock()
		if !errors.IsSuperseded(err) {
			c.emit(func(o Observer) { o.OnError(err) })
		}
		return nil, err
	}
	p.Query = key
	p.Result = res
	prev := p.Selection
	c.mu.Unlock()

	c.emit(func(o Observer) { o.OnSearchResult(id, key, res) })

	var best catalog.Object
	if r, ok := res.Best(); ok {
		best = r.Object
	}
	if sameObject(prev, best) {
		c.mu.Lock()
		if p.gen == gen {
			p.Selection = best
		}
		c.mu.Unlock()
		return res, nil
	}
	if err := c.selectAt(ctx, id, best, gen); err != nil && !errors.IsSuperseded(err) {
		return res, err
	}
	return res, nil
}

// request builds the aggregation for pane id. Caller holds mu.
func (c *Controller) request(id PaneID, key string) search.Request {
	item := c.panes[SourcePane].Leaf()
	switch id {
	case ActionPane:
		req := search.Request{Key: key}
		if item != nil {
			for _, a := range c.catalog.ActionsFor(item) {
				req.Items = append(req.Items, a)
			}
		}
		return req

	case ObjectPane:
		req := search.Request{Key: key}
		if src := c.panes[ObjectPane].Source; src != nil {
			req.Sources = []catalog.Source{src}
		}
		action := c.panes[ActionPane].Action()
		if action == nil || item == nil {
			return req
		}
		types := action.ObjectTypes()
		for _, ts := range c.catalog.TextSources() {
			if catalog.TypesIntersect(ts.Provides(), types) {
				req.TextSources = append(req.TextSources, ts)
			}
		}
		req.Filter = func(obj catalog.Object) bool {
			leaf, ok := obj.(catalog.Leaf)
			return ok && catalog.TypeMatches(leaf.Type(), types) && action.ValidObject(leaf, item)
		}
		return req

	default:
		req := search.Request{Key: key, TextSources: c.catalog.TextSources()}
		if src := c.panes[SourcePane].Source; src != nil {
			req.Sources = []catalog.Source{src}
		}
		return req
	}
}

// Select makes obj the selection of pane id and applies the transitions
// that follow from it. A nil obj clears the selection.
func (c *Controller) Select(ctx context.Context, id PaneID, obj catalog.Object) error {
	if id < SourcePane || id > ObjectPane {
		return fmt.Errorf("unknown pane %d", id)
	}
	c.mu.Lock()
	gen := c.panes[id].gen
	c.mu.Unlock()
	return c.selectAt(ctx, id, obj, gen)
}

// selectAt selects obj on behalf of generation gen of pane id. Once a newer
// search of that pane has started it returns errors.ErrSuperseded and leaves
// every pane as it is.
func (c *Controller) selectAt(ctx context.Context, id PaneID, obj catalog.Object, gen uint64) error {
	switch id {
	case SourcePane:
		return c.selectItem(ctx, obj, gen)
	case ActionPane:
		return c.selectAction(ctx, obj, gen)
	case ObjectPane:
		return c.selectObject(obj, gen)
	}
	return fmt.Errorf("unknown pane %d", id)
}

// selectItem repopulates the action pane for the new item and clears the
// object pane.
func (c *Controller) selectItem(ctx context.Context, obj catalog.Object, gen uint64) error {
	if obj != nil {
		if _, ok := obj.(catalog.Leaf); !ok {
			return fmt.Errorf("%s cannot be selected in the source pane", obj.Name())
		}
	}

	c.mu.Lock()
	if c.panes[SourcePane].gen != gen {
		c.mu.Unlock()
		return errors.ErrSuperseded
	}
	c.panes[SourcePane].Selection = obj
	c.panes[ActionPane].clear()
	c.panes[ObjectPane].rebase(nil)
	modeChanged := c.setMode(TwoPane)
	c.mu.Unlock()

	c.emit(func(o Observer) { o.OnSelection(SourcePane, obj) })
	c.emit(func(o Observer) { o.OnPaneReset(ObjectPane) })
	if modeChanged {
		c.emit(func(o Observer) { o.OnModeChanged(TwoPane) })
	}

	_, err := c.Search(ctx, ActionPane, "")
	return err
}

// selectAction switches to three panes for actions that need an indirect
// object, rebasing the object pane onto the action's object catalog.
func (c *Controller) selectAction(ctx context.Context, obj catalog.Object, gen uint64) error {
	var action catalog.Action
	if obj != nil {
		a, ok := obj.(catalog.Action)
		if !ok {
			return fmt.Errorf("%s is not an action", obj.Name())
		}
		action = a
	}

	c.mu.Lock()
	if c.panes[ActionPane].gen != gen {
		c.mu.Unlock()
		return errors.ErrSuperseded
	}
	c.panes[ActionPane].Selection = obj
	item := c.panes[SourcePane].Leaf()
	needsObject := action != nil && action.RequiresObject()

	var objSource catalog.Source
	if needsObject {
		objSource = c.objectSource(action, item)
		c.panes[ObjectPane].rebase(objSource)
	} else {
		c.panes[ObjectPane].rebase(nil)
		if c.current == ObjectPane {
			c.current = ActionPane
		}
	}
	mode := TwoPane
	if needsObject {
		mode = ThreePane
	}
	modeChanged := c.setMode(mode)
	c.mu.Unlock()

	c.emit(func(o Observer) { o.OnSelection(ActionPane, obj) })
	if modeChanged {
		c.emit(func(o Observer) { o.OnModeChanged(mode) })
	}
	if !needsObject {
		c.emit(func(o Observer) { o.OnPaneReset(ObjectPane) })
		return nil
	}
	c.emit(func(o Observer) { o.OnSourceChanged(ObjectPane, objSource) })

	_, err := c.Search(ctx, ObjectPane, "")
	return err
}

func (c *Controller) selectObject(obj catalog.Object, gen uint64) error {
	if obj != nil {
		if _, ok := obj.(catalog.Leaf); !ok {
			return fmt.Errorf("%s cannot be selected in the object pane", obj.Name())
		}
	}
	c.mu.Lock()
	if c.mode != ThreePane {
		c.mu.Unlock()
		return errors.New("object pane is not active")
	}
	if c.panes[ObjectPane].gen != gen {
		c.mu.Unlock()
		return errors.ErrSuperseded
	}
	c.panes[ObjectPane].Selection = obj
	c.mu.Unlock()

	c.emit(func(o Observer) { o.OnSelection(ObjectPane, obj) })
	return nil
}

// objectSource is the action's own object catalog, or the catalog root
// filtered to the action's object types. Caller holds mu.
func (c *Controller) objectSource(action catalog.Action, item catalog.Leaf) catalog.Source {
	if sourcer, ok := action.(catalog.ObjectSourcer); ok && item != nil {
		if src := sourcer.ObjectSource(item); src != nil {
			return c.catalog.Canonical(src)
		}
	}
	return c.catalog.RootForTypes(action.ObjectTypes())
}

// setMode reports whether the mode changed. Caller holds mu.
func (c *Controller) setMode(mode Mode) bool {
	if c.mode == mode {
		return false
	}
	c.mode = mode
	return true
}

// Focus moves focus to pane id. The pane is not searched again, but a
// selection whose backing resource disappeared is dropped and the pane
// reset. Focusing the object pane outside three-pane mode fails.
func (c *Controller) Focus(id PaneID) bool {
	c.mu.Lock()
	if id == ObjectPane && c.mode != ThreePane {
		c.mu.Unlock()
		return false
	}
	c.current = id

	p := c.panes[id]
	leaf := p.Leaf()
	invalid := leaf != nil && !leaf.IsValid()
	var reset []PaneID
	modeChanged := false
	if invalid {
		p.clear()
		reset = append(reset, id)
		if id == SourcePane {
			c.panes[ActionPane].clear()
			c.panes[ObjectPane].rebase(nil)
			modeChanged = c.setMode(TwoPane)
			reset = append(reset, ActionPane, ObjectPane)
		}
	}
	c.mu.Unlock()

	if invalid {
		c.logger.With(log.F("pane", id.String()), log.F("object", leaf.Name())).Debug("Dropped stale selection")
	}
	for _, r := range reset {
		c.emit(func(o Observer) { o.OnPaneReset(r) })
	}
	if modeChanged {
		c.emit(func(o Observer) { o.OnModeChanged(TwoPane) })
	}
	return true
}

// BrowseDown enters the content of the selected leaf. It reports false when
// the selection has no content.
func (c *Controller) BrowseDown(ctx context.Context, id PaneID, alternate bool) (bool, error) {
	if id == ActionPane {
		return false, nil
	}
	c.mu.Lock()
	leaf := c.panes[id].Leaf()
	if leaf == nil || !leaf.HasContent() {
		c.mu.Unlock()
		return false, nil
	}
	src := leaf.ContentSource(alternate)
	if src == nil {
		c.mu.Unlock()
		return false, nil
	}
	src = c.catalog.Canonical(src)
	c.panes[id].push(src)
	c.mu.Unlock()

	return true, c.sourceChanged(ctx, id, src)
}

// BrowseUp returns to the previous source, or to the parent of the current
// one when nothing was entered. It reports false when there is nowhere to
// go.
func (c *Controller) BrowseUp(ctx context.Context, id PaneID) (bool, error) {
	if id == ActionPane {
		return false, nil
	}
	c.mu.Lock()
	p := c.panes[id]
	if !p.pop() {
		if !catalog.HasParent(p.Source) {
			c.mu.Unlock()
			return false, nil
		}
		p.clear()
		p.Source = c.catalog.Canonical(p.Source.Parent())
	}
	src := p.Source
	c.mu.Unlock()

	return true, c.sourceChanged(ctx, id, src)
}

func (c *Controller) sourceChanged(ctx context.Context, id PaneID, src catalog.Source) error {
	c.emit(func(o Observer) { o.OnSourceChanged(id, src) })
	_, err := c.Search(ctx, id, "")
	if errors.IsSuperseded(err) {
		return nil
	}
	return err
}

// Reloaded refreshes every visible pane that shows src after its items were
// rescanned. Each such pane reports OnSourceChanged and repeats its current
// query.
func (c *Controller) Reloaded(ctx context.Context, src catalog.Source) error {
	if src == nil {
		return nil
	}
	type refresh struct {
		id    PaneID
		src   catalog.Source
		query string
	}
	var todo []refresh
	c.mu.Lock()
	for _, id := range []PaneID{SourcePane, ActionPane, ObjectPane} {
		if id == ObjectPane && c.mode != ThreePane {
			continue
		}
		p := c.panes[id]
		if p.Source != nil && p.Source.Key() == src.Key() {
			todo = append(todo, refresh{id: id, src: p.Source, query: p.Query})
		}
	}
	c.mu.Unlock()

	for _, r := range todo {
		c.emit(func(o Observer) { o.OnSourceChanged(r.id, r.src) })
		if _, err := c.Search(ctx, r.id, r.query); err != nil && !errors.IsSuperseded(err) {
			return err
		}
	}
	return nil
}

// Activate runs the selected action on the selected item and, in
// three-pane mode, the selected indirect object. Missing participants are
// rejected before the action is invoked. A factory action's source is
// entered in the source pane.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	item := c.panes[SourcePane].Leaf()
	action := c.panes[ActionPane].Action()
	iobj := c.panes[ObjectPane].Leaf()
	mode := c.mode
	queries := [3]string{c.panes[SourcePane].Query, c.panes[ActionPane].Query, c.panes[ObjectPane].Query}
	c.mu.Unlock()

	var err error
	switch {
	case item == nil:
		err = errors.NewActivationError("no item selected", "", errors.NoSelection, nil)
	case action == nil:
		err = errors.NewActivationError("no action selected", "", errors.NoAction, nil)
	case mode == ThreePane && iobj == nil:
		err = errors.NewActivationError("no object selected", action.Name(), errors.NoObject, nil)
	case !item.IsValid():
		c.Focus(SourcePane)
		err = errors.NewActivationError("selected item no longer exists", action.Name(), errors.NoSelection, nil)
	}
	if err != nil {
		c.emit(func(o Observer) { o.OnError(err) })
		return err
	}
	if mode != ThreePane {
		iobj = nil
	}

	if c.learning != nil {
		c.learning.RecordHit(item.Key(), queries[SourcePane])
		c.learning.RecordHit(action.Key(), queries[ActionPane])
		if iobj != nil {
			c.learning.RecordHit(iobj.Key(), queries[ObjectPane])
		}
	}

	logger := c.logger.With(log.F("action", action.Name()), log.F("item", item.Name()))
	if catalog.IsAsync(action) && c.worker != nil {
		var produced catalog.Source
		_, err := c.worker.Submit(worker.Job{
			Name: action.Name(),
			Run: func(ctx context.Context) error {
				src, err := action.Activate(ctx, item, iobj)
				produced = src
				return err
			},
			Done: func(id string, err error) {
				if err == nil && produced != nil && action.IsFactory() {
					if err := c.enter(context.Background(), produced); err != nil {
						logger.With(log.F("error", err)).Warn("Could not enter source returned by action")
					}
					return
				}
				c.finished(logger, action, item, iobj, err)
			},
		})
		if err != nil {
			err = errors.NewActivationError("could not schedule action", action.Name(), errors.ActionFailed, err)
			c.emit(func(o Observer) { o.OnError(err) })
			return err
		}
		logger.With(log.F("async", true)).Debug("Action scheduled")
		return nil
	}

	src, err := action.Activate(ctx, item, iobj)
	if err == nil && action.IsFactory() && src != nil {
		logger.Debug("Entering source returned by action")
		return c.enter(ctx, src)
	}
	return c.finished(logger, action, item, iobj, err)
}

// finished reports the outcome of an activation that did not enter a
// source.
func (c *Controller) finished(logger log.Logging, action catalog.Action, item, iobj catalog.Leaf, err error) error {
	if err != nil {
		var actErr *errors.ActivationError
		if !errors.As(err, &actErr) {
			err = errors.NewActivationError("action failed", action.Name(), errors.ActionFailed, err)
		}
		logger.With(log.F("error", err)).Warn("Action failed")
		c.emit(func(o Observer) { o.OnError(err) })
		return err
	}
	logger.Debug("Action completed")
	c.emit(func(o Observer) { o.OnLaunched(action, item, iobj) })
	return nil
}

// enter pushes src onto the source pane and focuses it.
func (c *Controller) enter(ctx context.Context, src catalog.Source) error {
	src = c.catalog.Canonical(src)
	c.mu.Lock()
	c.panes[SourcePane].push(src)
	c.current = SourcePane
	c.mu.Unlock()
	return c.sourceChanged(ctx, SourcePane, src)
}

// Reset returns every pane to its initial state: the source pane on the
// catalog root, nothing selected, two-pane mode.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.panes[SourcePane].rebase(c.catalog.Root())
	c.panes[ActionPane].clear()
	c.panes[ObjectPane].rebase(nil)
	modeChanged := c.setMode(TwoPane)
	c.current = SourcePane
	c.mu.Unlock()

	for _, id := range []PaneID{SourcePane, ActionPane, ObjectPane} {
		c.emit(func(o Observer) { o.OnPaneReset(id) })
	}
	if modeChanged {
		c.emit(func(o Observer) { o.OnModeChanged(TwoPane) })
	}
}

// emit delivers an event to every observer. Never called with mu held.
func (c *Controller) emit(fn func(o Observer)) {
	c.obsMu.RLock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.obsMu.RUnlock()
	if len(observers) == 0 {
		return
	}

	deliver := func() {
		for _, o := range observers {
			fn(o)
		}
	}
	if c.poster == nil || !c.poster.Post(deliver) {
		deliver()
	}
}

func sameObject(a, b catalog.Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}
