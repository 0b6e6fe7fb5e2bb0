// Package rescan keeps cached catalogs fresh. A campaign walks the cacheable
// sources one per period; when every source is fresh the campaign pauses for
// the campaign length before starting over. Rescans run on the worker pool.
package rescan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quarry/internal/catalog"
	"quarry/internal/log"
	"quarry/internal/worker"
)

// State of the rescan campaign.
type State int

const (
	Idle State = iota
	Scanning
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options control the cadence.
type Options struct {
	// StartupDelay is the wait between SetCatalog and the first rescan.
	StartupDelay time.Duration
	// Period is the wait between two rescans of a campaign.
	Period time.Duration
	// Campaign is the pause after a full sweep. A source is not rescanned
	// again within a tenth of it.
	Campaign time.Duration
	// IdleDelay coalesces RegisterRescan demands.
	IdleDelay time.Duration
}

// DefaultOptions returns the cadence used when none is configured.
func DefaultOptions() Options {
	return Options{
		StartupDelay: 10 * time.Second,
		Period:       5 * time.Second,
		Campaign:     time.Hour,
		IdleDelay:    2 * time.Second,
	}
}

// Event reports a finished rescan. It is delivered on the interactive
// domain.
type Event struct {
	Source catalog.Source
	JobID  string
	Forced bool
	Err    error
}

// Submitter runs background jobs.
type Submitter interface {
	Submit(job worker.Job) (string, error)
}

type demand struct {
	src   *catalog.Indexed
	force bool
}

// Rescanner is the periodic rescan scheduler. It implements
// catalog.RescanRequester.
type Rescanner struct {
	opts   Options
	pool   Submitter
	logger log.Logging

	mu          sync.Mutex
	sources     []*catalog.Indexed
	byKey       map[string]*catalog.Indexed
	visited     map[string]time.Time
	inflight    map[string]bool
	demands     map[string]demand
	cursor      int
	state       State
	subscribers []func(Event)

	reset    chan struct{}
	wake     chan struct{}
	stopChan chan struct{}
	done     chan struct{}
	running  bool
}

var _ catalog.RescanRequester = (*Rescanner)(nil)

// New creates a stopped rescanner.
func New(opts Options, pool Submitter, logger log.Logging) *Rescanner {
	def := DefaultOptions()
	if opts.StartupDelay < 0 {
		opts.StartupDelay = 0
	}
	if opts.Period <= 0 {
		opts.Period = def.Period
	}
	if opts.Campaign <= 0 {
		opts.Campaign = def.Campaign
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = def.IdleDelay
	}
	return &Rescanner{
		opts:     opts,
		pool:     pool,
		logger:   logger,
		byKey:    make(map[string]*catalog.Indexed),
		visited:  make(map[string]time.Time),
		inflight: make(map[string]bool),
		demands:  make(map[string]demand),
		reset:    make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
	}
}

// MinInterval is the shortest time between two campaign visits of a source.
func (r *Rescanner) MinInterval() time.Duration {
	return r.opts.Campaign / 10
}

// SetCatalog replaces the set of sources to keep fresh and restarts the
// campaign after the startup delay.
func (r *Rescanner) SetCatalog(sources []catalog.Source) {
	r.mu.Lock()
	r.sources = r.sources[:0]
	r.byKey = make(map[string]*catalog.Indexed, len(sources))
	for _, src := range sources {
		ix := catalog.Index(src)
		r.sources = append(r.sources, ix)
		r.byKey[ix.Key()] = ix
	}
	r.cursor = 0
	r.state = Idle
	r.mu.Unlock()

	select {
	case r.reset <- struct{}{}:
	default:
	}
}

// Subscribe registers fn for rescan completions.
func (r *Rescanner) Subscribe(fn func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// State returns the campaign state.
func (r *Rescanner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RegisterRescan asks for src to be rescanned at the next idle slot. Demands
// arriving before that slot are merged; force wins over a plain demand.
// Sources outside the current catalog are ignored.
func (r *Rescanner) RegisterRescan(src catalog.Source, force bool) {
	r.mu.Lock()
	ix, ok := r.byKey[src.Key()]
	if !ok {
		r.mu.Unlock()
		r.logger.With(log.F("source", src.Name())).Debug("Ignoring rescan of uncataloged source")
		return
	}
	d := r.demands[ix.Key()]
	r.demands[ix.Key()] = demand{src: ix, force: d.force || force}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start runs the scheduler until Stop or ctx is done.
func (r *Rescanner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("rescanner is already running")
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})

	r.logger.With(
		log.F("startupDelay", r.opts.StartupDelay),
		log.F("campaign", r.opts.Campaign),
	).Info("Starting periodic rescanner")

	go r.run(ctx, r.stopChan, r.done)
	return nil
}

// Stop halts the scheduler. Rescans already handed to workers finish on
// their own.
func (r *Rescanner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
	r.mu.Lock()
	r.state = Idle
	r.mu.Unlock()
}

func (r *Rescanner) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	tick := time.NewTimer(r.opts.StartupDelay)
	defer tick.Stop()
	var (
		idle  *time.Timer
		idleC <-chan time.Time
	)
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-r.reset:
			resetTimer(tick, r.opts.StartupDelay)
		case <-tick.C:
			tick.Reset(r.step(time.Now()))
		case <-r.wake:
			if idleC == nil {
				idle = time.NewTimer(r.opts.IdleDelay)
				idleC = idle.C
			}
		case <-idleC:
			idle, idleC = nil, nil
			r.flushDemands()
		}
	}
}

// step performs one campaign tick and returns the wait until the next one.
func (r *Rescanner) step(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sources) == 0 {
		r.state = Idle
		return r.opts.Campaign
	}

	for r.cursor < len(r.sources) {
		ix := r.sources[r.cursor]
		r.cursor++
		if !r.due(ix, now) {
			continue
		}
		r.state = Scanning
		r.dispatch(ix, false, now)
		return r.opts.Period
	}

	r.cursor = 0
	r.state = Paused
	r.logger.Debug("Rescan campaign complete")
	return r.opts.Campaign
}

// due reports whether ix needs a campaign visit. Caller holds mu.
func (r *Rescanner) due(ix *catalog.Indexed, now time.Time) bool {
	if ix.IsDynamic() || r.inflight[ix.Key()] {
		return false
	}
	last := ix.LastScan()
	if v := r.visited[ix.Key()]; v.After(last) {
		last = v
	}
	return last.IsZero() || now.Sub(last) >= r.MinInterval()
}

func (r *Rescanner) flushDemands() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for key, d := range r.demands {
		delete(r.demands, key)
		if d.src.IsDynamic() {
			continue
		}
		if r.inflight[key] {
			// Try again at the next idle slot.
			r.demands[key] = d
			select {
			case r.wake <- struct{}{}:
			default:
			}
			continue
		}
		r.dispatch(d.src, d.force, now)
	}
}

// dispatch hands a rescan of ix to the pool. Caller holds mu.
func (r *Rescanner) dispatch(ix *catalog.Indexed, force bool, now time.Time) {
	key := ix.Key()
	r.inflight[key] = true
	r.visited[key] = now

	logger := r.logger.With(log.F("source", ix.Name()), log.F("force", force))
	_, err := r.pool.Submit(worker.Job{
		Name: "rescan " + ix.Name(),
		Run: func(ctx context.Context) error {
			_, err := ix.Rescan(ctx, force)
			return err
		},
		Cleanup: func() {
			r.mu.Lock()
			delete(r.inflight, key)
			r.mu.Unlock()
		},
		Done: func(id string, err error) {
			if err == nil {
				logger.Debug("Source rescanned")
			}
			r.notify(Event{Source: ix, JobID: id, Forced: force, Err: err})
		},
	})
	if err != nil {
		delete(r.inflight, key)
		logger.With(log.F("error", err)).Warn("Could not schedule rescan")
	}
}

func (r *Rescanner) notify(ev Event) {
	r.mu.Lock()
	subs := make([]func(Event), len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
