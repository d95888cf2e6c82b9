// Package dependency wires the guide's services using go.uber.org/dig.
package dependency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/dig"

	"github.com/deepscifi/guide/internal/agent"
	"github.com/deepscifi/guide/internal/config"
	"github.com/deepscifi/guide/internal/cron"
	"github.com/deepscifi/guide/internal/heartbeat"
	"github.com/deepscifi/guide/internal/mcp"
	"github.com/deepscifi/guide/internal/observability"
	"github.com/deepscifi/guide/internal/providers"
	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/store"
	"github.com/deepscifi/guide/internal/tools"
	"github.com/deepscifi/guide/internal/transport"
)

// Version is reported to MCP clients and telemetry.
const Version = "0.1.0"

// Container resolves services on first use. Commands ask only for what they
// need, so `guide migrate` never builds an engine and `guide mcp` never opens
// a listener. Callers use the typed getters; they never import dig directly.
type Container struct {
	cfg *config.Config
	d   *dig.Container

	mu      sync.Mutex
	closers []func(context.Context) error
}

// StatsFacade wraps the cached facade so dig can hand out "no cache" as a
// zero value. Cached is nil when the cache is disabled.
type StatsFacade struct{ Cached *store.CachedFacade }

// Database is the open handle plus the SQL dialect it speaks.
type Database struct {
	DB      *sql.DB
	Dialect store.Dialect
}

// New registers every constructor. Nothing is built until a getter runs.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{cfg: cfg, d: dig.New()}

	ctors := []any{
		func() *config.Config { return cfg },
		func() context.Context { return ctx },
		c.newDatabase,
		newSQLFacade,
		c.newStatsFacade,
		newFacade,
		c.newTelemetry,
		newProvider,
		newCatalog,
		newDispatcher,
		newGuide,
		newHeartbeat,
		newCron,
		newTransport,
		newMCPServer,
	}
	for _, ctor := range ctors {
		if err := c.d.Provide(ctor); err != nil {
			return nil, fmt.Errorf("dependency: %w", err)
		}
	}
	return c, nil
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config { return c.cfg }

func (c *Container) Database() (Database, error)            { return resolve[Database](c) }
func (c *Container) Facade() (store.Facade, error)          { return resolve[store.Facade](c) }
func (c *Container) Guide() (*agent.Guide, error)           { return resolve[*agent.Guide](c) }
func (c *Container) Heartbeat() (*heartbeat.Service, error) { return resolve[*heartbeat.Service](c) }
func (c *Container) Cron() (*cron.Service, error)           { return resolve[*cron.Service](c) }
func (c *Container) Transport() (*transport.Server, error)  { return resolve[*transport.Server](c) }
func (c *Container) MCPServer() (*mcp.Server, error)        { return resolve[*mcp.Server](c) }

func resolve[T any](c *Container) (T, error) {
	var out T
	err := c.d.Invoke(func(v T) { out = v })
	return out, dig.RootCause(err)
}

// Close releases everything the container opened, last opened first.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, fn)
}

func (c *Container) newDatabase(cfg *config.Config) (Database, error) {
	sc := cfg.Store
	dialect, err := store.ParseDialect(sc.Driver)
	if err != nil {
		return Database{}, err
	}
	if dialect == store.SQLite && !strings.HasPrefix(sc.DSN, "file:") && !strings.Contains(sc.DSN, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(sc.DSN), 0o755); err != nil {
			return Database{}, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, _, err := store.Open(sc.Driver, sc.DSN, sc.MaxOpenConns)
	if err != nil {
		return Database{}, err
	}
	c.onClose(func(context.Context) error { return db.Close() })
	return Database{DB: db, Dialect: dialect}, nil
}

func newSQLFacade(cfg *config.Config, db Database) *store.SQLFacade {
	return store.NewSQLFacade(db.DB, db.Dialect, store.Options{
		MaxLimit:     cfg.Store.MaxLimit,
		QueryTimeout: config.Seconds(cfg.Store.QueryTimeout),
	})
}

// newStatsFacade puts the Redis stats cache in front of the store.
func (c *Container) newStatsFacade(cfg *config.Config, f *store.SQLFacade) StatsFacade {
	if !cfg.Cache.Enabled {
		return StatsFacade{}
	}
	cache := store.NewRedisStatsCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, config.Seconds(cfg.Cache.TTL))
	c.onClose(func(context.Context) error { return cache.Close() })
	return StatsFacade{Cached: store.NewCachedFacade(f, cache)}
}

func newFacade(f *store.SQLFacade, sf StatsFacade) store.Facade {
	if sf.Cached != nil {
		return sf.Cached
	}
	return f
}

func (c *Container) newTelemetry(ctx context.Context, cfg *config.Config) (*observability.Provider, error) {
	tc := cfg.Telemetry
	p, err := observability.New(ctx, observability.Config{
		Enabled:        tc.Enabled,
		ServiceName:    tc.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   tc.Endpoint,
		Insecure:       tc.Insecure,
		SampleRate:     tc.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	c.onClose(p.Shutdown)
	return p, nil
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	params := cfg.ProviderParams()
	spec := providers.FindByName(params.ProviderName)
	local := spec != nil && spec.IsLocal
	if params.APIKey == "" && !local {
		return nil, fmt.Errorf("no API key configured for model %q: set %s or edit %s",
			cfg.Agent.Model, config.EnvAPIKey, config.ConfigPath())
	}
	return providers.New(params), nil
}

func newCatalog(f store.Facade) (*tools.Registry, error) {
	return tools.NewCatalog(f)
}

func newDispatcher(cfg *config.Config, reg *tools.Registry, obs *observability.Provider) *tools.Dispatcher {
	return tools.NewDispatcher(reg,
		tools.WithToolTimeout(config.Seconds(cfg.Agent.ToolTimeout)),
		tools.WithObserver(obs),
	)
}

func newGuide(cfg *config.Config, p schema.LLMProvider, d *tools.Dispatcher, obs *observability.Provider) *agent.Guide {
	ac := cfg.Agent
	return agent.New(p, d, agent.Settings{
		Model:             ac.Model,
		MaxTokens:         ac.MaxTokens,
		Temperature:       ac.Temperature,
		MaxToolIterations: ac.MaxToolIter,
		EngineTimeout:     config.Seconds(ac.TurnTimeout),
		HistoryWindow:     ac.HistoryWindow,
	}, agent.WithTurnObserver(obs))
}

func newHeartbeat(cfg *config.Config, f store.Facade) *heartbeat.Service {
	return heartbeat.NewService(f, config.Seconds(cfg.Heartbeat.Interval))
}

func newCron(ctx context.Context, cfg *config.Config, sf StatsFacade) (*cron.Service, error) {
	svc := cron.NewService()
	if sf.Cached == nil || cfg.Cron.StatsRefresh == "" {
		return svc, nil
	}
	job := cron.NewStatsRefreshJob(cfg.Cron.StatsRefresh, sf.Cached, config.Seconds(cfg.Store.QueryTimeout))
	if err := svc.AddJob(ctx, job); err != nil {
		return nil, err
	}
	return svc, nil
}

func newTransport(cfg *config.Config, g *agent.Guide, hb *heartbeat.Service) *transport.Server {
	return transport.NewServer(g, hb, transport.Options{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HistoryWindow:  cfg.Agent.HistoryWindow,
	})
}

func newMCPServer(d *tools.Dispatcher) *mcp.Server {
	return mcp.NewServer("guide", Version, d)
}
