package agent

import (
	"context"
	"time"

	"github.com/deepscifi/guide/internal/events"
	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/tools"
)

// Settings tune the turn loop.
type Settings struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// MaxToolIterations caps engine round trips per turn.
	MaxToolIterations int
	// EngineTimeout bounds a single engine call.
	EngineTimeout time.Duration
	// HistoryWindow is how many prior messages the engine sees; 0 means all.
	HistoryWindow int
}

// DefaultSettings returns the settings used when the config leaves them unset.
func DefaultSettings() Settings {
	return Settings{
		MaxTokens:         1024,
		Temperature:       0.7,
		MaxToolIterations: 10,
		EngineTimeout:     60 * time.Second,
		HistoryWindow:     20,
	}
}

// TurnObserver is told when a turn starts; the returned func is called once
// with the turn's outcome.
type TurnObserver interface {
	TurnStarted(ctx context.Context, runID string) (context.Context, func(events.OutcomeKind))
}

type nopTurnObserver struct{}

func (nopTurnObserver) TurnStarted(ctx context.Context, _ string) (context.Context, func(events.OutcomeKind)) {
	return ctx, func(events.OutcomeKind) {}
}

// Guide is the immutable agent handle: engine, tool catalog, model settings
// and instructions. It is built once at startup and shared by every
// conversation.
type Guide struct {
	provider     schema.LLMProvider
	dispatcher   *tools.Dispatcher
	settings     Settings
	instructions string
	observer     TurnObserver
	buffer       int
	now          func() time.Time
}

// Option configures a Guide.
type Option func(*Guide)

// WithInstructions replaces DefaultInstructions.
func WithInstructions(s string) Option {
	return func(g *Guide) {
		if s != "" {
			g.instructions = s
		}
	}
}

// WithTurnObserver attaches turn metrics/tracing.
func WithTurnObserver(o TurnObserver) Option {
	return func(g *Guide) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithStreamBuffer sets how many events a turn may queue ahead of its consumer.
func WithStreamBuffer(n int) Option {
	return func(g *Guide) { g.buffer = n }
}

// New builds a Guide. Zero-valued settings fall back to DefaultSettings and
// an empty model to the provider's default.
func New(provider schema.LLMProvider, dispatcher *tools.Dispatcher, settings Settings, opts ...Option) *Guide {
	def := DefaultSettings()
	if settings.Model == "" {
		settings.Model = provider.DefaultModel()
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = def.MaxTokens
	}
	if settings.MaxToolIterations <= 0 {
		settings.MaxToolIterations = def.MaxToolIterations
	}
	if settings.EngineTimeout <= 0 {
		settings.EngineTimeout = def.EngineTimeout
	}
	if settings.HistoryWindow < 0 {
		settings.HistoryWindow = 0
	}

	g := &Guide{
		provider:     provider,
		dispatcher:   dispatcher,
		settings:     settings,
		instructions: DefaultInstructions,
		observer:     nopTurnObserver{},
		buffer:       events.DefaultBuffer,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Settings returns the effective settings.
func (g *Guide) Settings() Settings { return g.settings }

// Catalog returns the tool registry the guide dispatches to.
func (g *Guide) Catalog() *tools.Registry { return g.dispatcher.Registry() }
