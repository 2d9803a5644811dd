// Package app wires the agents, store, bus and retrieval engine into the
// service's controllers: the flush pipeline and the three bus consumers.
package app

import (
	"context"
	"io"
	"log/slog"

	acontext "github.com/slyt3/Acontext"
	"github.com/slyt3/Acontext/agent"
	"github.com/slyt3/Acontext/bus"
	"github.com/slyt3/Acontext/internal/config"
	"github.com/slyt3/Acontext/observer"
)

var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Publisher is the outbound edge of the pipeline. *bus.Client satisfies it.
type Publisher interface {
	PublishNewTaskComplete(ctx context.Context, projectID, sessionID, taskID string) error
	PublishSOPComplete(ctx context.Context, projectID, spaceID, taskID string, sop acontext.SOPData) error
}

// App owns the agent pipeline and its controllers.
type App struct {
	cfg       config.Config
	store     acontext.Store
	publisher Publisher
	logger    *slog.Logger
	inst      *observer.Instruments

	searcher    *acontext.Searcher
	indexer     *acontext.Indexer
	extractor   *agent.TaskExtractor
	abstractor  *agent.SOPAbstractor
	constructor *agent.SpaceConstructor
	experience  *agent.ExperienceSearcher
}

// Option customizes an App.
type Option func(*App)

// WithLogger sets the logger, propagated to all agents.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithInstruments enables OTEL spans and metrics around agent runs.
func WithInstruments(inst *observer.Instruments) Option {
	return func(a *App) { a.inst = inst }
}

// New builds the App and its agents from the given dependencies.
func New(cfg config.Config, store acontext.Store, publisher Publisher, provider acontext.Provider, embedder acontext.EmbeddingProvider, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		logger:    nopLogger,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.searcher = acontext.NewSearcher(store, embedder,
		acontext.WithSearchThreshold(cfg.Search.Threshold),
		acontext.WithFetchRatio(cfg.Search.FetchRatio),
		acontext.WithSearchLogger(a.logger))
	a.indexer = acontext.NewIndexer(store, embedder,
		acontext.WithIndexLogger(a.logger))
	a.extractor = agent.NewTaskExtractor(store, provider,
		agent.WithTaskMaxIterations(cfg.Agent.TaskIterations),
		agent.WithTaskProgressNum(cfg.Agent.TaskProgressNum),
		agent.WithTaskLogger(a.logger))
	a.abstractor = agent.NewSOPAbstractor(store, provider, publisher,
		agent.WithSOPMaxIterations(cfg.Agent.SOPIterations),
		agent.WithSOPLogger(a.logger))
	a.constructor = agent.NewSpaceConstructor(store, provider, a.indexer,
		agent.WithSpaceLogger(a.logger))
	a.experience = agent.NewExperienceSearcher(store, a.searcher, provider,
		agent.WithExperienceLogger(a.logger))
	return a
}

// Init prepares the persistence layer.
func (a *App) Init(ctx context.Context) error {
	return a.store.Init(ctx)
}

// Store exposes the persistence layer to the HTTP edge.
func (a *App) Store() acontext.Store { return a.store }

// Searcher exposes the retrieval engine to the HTTP edge.
func (a *App) Searcher() *acontext.Searcher { return a.searcher }

// Indexer exposes the embedding writer to the HTTP edge.
func (a *App) Indexer() *acontext.Indexer { return a.indexer }

// Experience exposes the search agent to the HTTP edge.
func (a *App) Experience() *agent.ExperienceSearcher { return a.experience }

// RegisterConsumers binds the three pipeline consumers on the bus client.
func (a *App) RegisterConsumers(c *bus.Client) error {
	if err := bus.Consume(c, bus.SessionMessageInsert, a.HandleNewMessage); err != nil {
		return err
	}
	if err := bus.Consume(c, bus.SpaceTaskComplete, a.HandleTaskComplete); err != nil {
		return err
	}
	return bus.Consume(c, bus.SpaceSOPComplete, a.HandleSOPComplete)
}

// startRun opens an agent-level observation span when instruments are
// configured.
func (a *App) startRun(ctx context.Context, name string) (context.Context, func(error)) {
	if a.inst == nil {
		return ctx, func(error) {}
	}
	return a.inst.StartRun(ctx, name)
}
