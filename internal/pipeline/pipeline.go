// Package pipeline sequences search, fetch, and compose into a single
// request state machine and reports progress to the UI collaborator.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridskin/gridskin/internal/compositor"
	"github.com/gridskin/gridskin/internal/fetcher"
	"github.com/gridskin/gridskin/internal/models"
	"github.com/gridskin/gridskin/internal/overlay"
	"github.com/gridskin/gridskin/internal/searchcache"
)

// State is the pipeline's position in the current request.
type State string

const (
	StateIdle         State = "idle"
	StateSearching    State = "searching"
	StateResultsReady State = "results_ready"
	StateFetching     State = "fetching"
	StateComposing    State = "composing"
	StateDone         State = "done"
	StateError        State = "error"
)

// Event is emitted to the UI collaborator on every state transition.
// Candidates is set on results_ready, Result on done, Err on error.
type Event struct {
	RequestID  string
	State      State
	Candidates []models.GridCandidate
	Result     *models.CompositeResult
	Err        *models.PipelineError
}

// Pipeline drives one request at a time through
// searching → results_ready → fetching → composing → done. A new SubmitQuery
// supersedes any in-flight request: the stale work may still finish and
// populate the caches, but its events are discarded.
type Pipeline struct {
	cache    *searchcache.Cache
	fetcher  *fetcher.Fetcher
	registry *overlay.Registry
	comp     *compositor.Compositor
	logger   *zap.Logger

	events chan Event

	mu         sync.Mutex
	gen        uint64
	requestID  string
	state      State
	candidates []models.GridCandidate
}

// New creates a pipeline wired to its stages.
func New(
	cache *searchcache.Cache,
	f *fetcher.Fetcher,
	registry *overlay.Registry,
	comp *compositor.Compositor,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		cache:    cache,
		fetcher:  f,
		registry: registry,
		comp:     comp,
		logger:   logger,
		events:   make(chan Event, 16),
		state:    StateIdle,
	}
}

// Events returns the channel carrying state transition events.
func (p *Pipeline) Events() <-chan Event { return p.events }

// State returns the current request's state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SubmitQuery starts a new request for query, superseding any in-flight
// one, and returns its request ID. The search runs on a background
// goroutine; the outcome arrives on Events.
func (p *Pipeline) SubmitQuery(ctx context.Context, query string) string {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.requestID = uuid.NewString()
	requestID := p.requestID
	p.state = StateSearching
	p.candidates = nil
	p.mu.Unlock()

	p.emit(gen, Event{RequestID: requestID, State: StateSearching})
	p.logger.Debug("query submitted",
		zap.String("request_id", requestID),
		zap.String("query", query))

	go func() {
		candidates, err := p.cache.Lookup(ctx, query)
		if err != nil {
			p.fail(gen, requestID, err)
			return
		}
		p.mu.Lock()
		if gen == p.gen {
			p.state = StateResultsReady
			p.candidates = candidates
		}
		p.mu.Unlock()
		p.emit(gen, Event{RequestID: requestID, State: StateResultsReady, Candidates: candidates})
	}()
	return requestID
}

// Select continues the current request with a chosen candidate and console.
// The console is resolved before any network fetch, so an unknown console
// costs no download. Fetch and compose run on a background goroutine.
func (p *Pipeline) Select(ctx context.Context, candidateID int64, consoleID string) {
	p.mu.Lock()
	if p.state != StateResultsReady {
		gen, requestID := p.gen, p.requestID
		p.mu.Unlock()
		p.fail(gen, requestID, models.Errf(models.ErrNotFound,
			"no results to select from (state %s)", p.State()))
		return
	}
	gen := p.gen
	requestID := p.requestID
	candidate, ok := findCandidate(p.candidates, candidateID)
	p.mu.Unlock()

	if !ok {
		p.fail(gen, requestID, models.Errf(models.ErrNotFound, "candidate %d not in results", candidateID))
		return
	}

	spec, err := p.registry.Get(consoleID)
	if err != nil {
		p.fail(gen, requestID, err)
		return
	}

	p.setState(gen, StateFetching)
	p.emit(gen, Event{RequestID: requestID, State: StateFetching})

	go func() {
		cached, err := p.fetcher.Fetch(ctx, candidate)
		if err != nil {
			p.fail(gen, requestID, err)
			return
		}

		p.setState(gen, StateComposing)
		p.emit(gen, Event{RequestID: requestID, State: StateComposing})

		result, err := p.comp.Compose(cached, spec)
		if err != nil {
			p.fail(gen, requestID, err)
			return
		}

		p.setState(gen, StateDone)
		p.emit(gen, Event{RequestID: requestID, State: StateDone, Result: result})
	}()
}

// ComposeIcon runs a whole request synchronously: resolve the query, pick
// candidateID (or the top-ranked candidate when zero), fetch, and compose.
// Used by the HTTP API and the batch CLI path.
func (p *Pipeline) ComposeIcon(ctx context.Context, query string, candidateID int64, consoleID string) (*models.CompositeResult, error) {
	spec, err := p.registry.Get(consoleID)
	if err != nil {
		return nil, err
	}

	candidates, err := p.cache.Lookup(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, models.Errf(models.ErrNotFound, "no candidates for %q", query)
	}

	candidate := candidates[0]
	if candidateID != 0 {
		var ok bool
		candidate, ok = findCandidate(candidates, candidateID)
		if !ok {
			return nil, models.Errf(models.ErrNotFound, "candidate %d not in results for %q", candidateID, query)
		}
	}

	cached, err := p.fetcher.Fetch(ctx, candidate)
	if err != nil {
		return nil, err
	}
	return p.comp.Compose(cached, spec)
}

// Search resolves a query through the cache without starting a request.
func (p *Pipeline) Search(ctx context.Context, query string) ([]models.GridCandidate, error) {
	return p.cache.Lookup(ctx, query)
}

// Process composes icons for a batch of game names against one console,
// taking the top candidate for each. Failures are collected per game rather
// than aborting the batch.
func (p *Pipeline) Process(ctx context.Context, names []string, consoleID string) ([]*models.CompositeResult, map[string]error) {
	results := make([]*models.CompositeResult, 0, len(names))
	failures := make(map[string]error)
	for _, name := range names {
		result, err := p.ComposeIcon(ctx, name, 0, consoleID)
		if err != nil {
			p.logger.Warn("batch item failed",
				zap.String("game", name),
				zap.Error(err))
			failures[name] = err
			continue
		}
		results = append(results, result)
	}
	return results, failures
}

func findCandidate(candidates []models.GridCandidate, id int64) (models.GridCandidate, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return models.GridCandidate{}, false
}

func (p *Pipeline) setState(gen uint64, state State) {
	p.mu.Lock()
	if gen == p.gen {
		p.state = state
	}
	p.mu.Unlock()
}

func (p *Pipeline) fail(gen uint64, requestID string, err error) {
	var pe *models.PipelineError
	if !errors.As(err, &pe) {
		pe = models.WrapErr(models.ErrIO, err, "pipeline failure")
	}
	p.setState(gen, StateError)
	p.emit(gen, Event{RequestID: requestID, State: StateError, Err: pe})
	p.logger.Warn("request failed",
		zap.String("request_id", requestID),
		zap.String("kind", string(pe.Kind)),
		zap.Error(err))
}

// emit delivers an event unless the request generation has been superseded.
// Delivery never blocks; if the collaborator has fallen 16 events behind,
// the oldest unread event is dropped in favor of the new one.
func (p *Pipeline) emit(gen uint64, ev Event) {
	p.mu.Lock()
	stale := gen != p.gen
	p.mu.Unlock()
	if stale {
		return
	}
	for {
		select {
		case p.events <- ev:
			return
		default:
			select {
			case <-p.events:
			default:
			}
		}
	}
}
