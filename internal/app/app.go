package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/toomja/ilm/internal/database"
	"github.com/toomja/ilm/internal/history"
	"github.com/toomja/ilm/internal/narrative"
	"github.com/toomja/ilm/internal/provider/resilience"
	"github.com/toomja/ilm/internal/weather"
	"github.com/toomja/ilm/internal/weather/ilmateenistus"
	"github.com/toomja/ilm/internal/weather/openmeteo"
)

// Options are the process-level dependencies of Build.
type Options struct {
	Logger zerolog.Logger

	// Clock drives expiry, timestamps and backoff (optional).
	Clock clockwork.Clock

	// Policy overrides the retry envelope of every upstream (optional).
	Policy *resilience.Policy

	// Transport overrides the upstream HTTP transport (optional).
	Transport http.RoundTripper

	// Store replaces the configured backend (optional).
	Store history.Repository
}

// Pipeline is the wired weather pipeline.
type Pipeline struct {
	Config     Config
	Weather    *weather.Service
	Narratives *narrative.Service
	Estonian   *ilmateenistus.Client
	OpenMeteo  *openmeteo.Client
	Registry   *resilience.Registry
	Store      history.Repository

	// DB is the Postgres pool, nil for the in-memory store.
	DB *pgxpool.Pool
}

// Close releases the database pool.
func (p *Pipeline) Close() {
	if p.DB != nil {
		p.DB.Close()
	}
}

// Build connects the store and wires clients, aggregator, cache and
// narrator. Postgres migrations are applied before returning.
func Build(ctx context.Context, cfg Config, opts Options) (*Pipeline, error) {
	log := opts.Logger
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	p := &Pipeline{Config: cfg, Registry: resilience.NewRegistry(), Store: opts.Store}

	if p.Store == nil {
		switch cfg.StoreBackend {
		case StoreMemory:
			p.Store = history.NewInMemoryRepository()
			log.Warn().Msg("using in-memory store, history is lost on restart")
		default:
			dbConfig := database.ConfigFromEnv()
			pool, err := database.Connect(ctx, dbConfig)
			if err != nil {
				return nil, fmt.Errorf("connecting to database: %w", err)
			}
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrating database: %w", err)
			}
			log.Info().Str("database", dbConfig.Redacted()).Msg("database connected")
			p.DB = pool
			p.Store = history.NewPostgresRepository(pool)
		}
	}

	p.OpenMeteo = openmeteo.NewClient(openmeteo.ClientConfig{
		Location:   cfg.LocationName,
		Lat:        cfg.Latitude,
		Lon:        cfg.Longitude,
		BaseURL:    cfg.OpenMeteoURL,
		HTTPClient: p.upstream(openmeteo.ProviderName, clock, opts),
		Clock:      clock,
	})
	p.Estonian = ilmateenistus.NewClient(ilmateenistus.ClientConfig{
		Location:   cfg.LocationName,
		Lat:        cfg.Latitude,
		Lon:        cfg.Longitude,
		BaseURL:    cfg.EstonianURL,
		HTTPClient: p.upstream(ilmateenistus.ProviderName, clock, opts),
		Clock:      clock,
	})

	var backend narrative.Backend
	if cfg.OpenAIAPIKey != "" {
		var httpClient *http.Client
		if opts.Transport != nil {
			httpClient = &http.Client{Transport: opts.Transport}
		}
		backend = narrative.NewOpenAIBackend(narrative.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIURL,
			HTTPClient: httpClient,
		})
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, narratives use the template fallback")
	}

	generator := narrative.NewGenerator(narrative.GeneratorConfig{
		Backend: backend,
		Policy:  opts.Policy,
		Clock:   clock,
		Notify: func(attempt int, err error, wait time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("narrative backend retry")
		},
	})
	p.Narratives = narrative.NewService(narrative.ServiceConfig{
		Generator: generator,
		Store:     p.Store,
		Logger:    log.With().Str("component", "narrative").Logger(),
	})

	p.Weather = weather.NewService(weather.ServiceConfig{
		Aggregator: weather.NewAggregator(weather.AggregatorConfig{
			SourceA: p.OpenMeteo,
			SourceB: p.Estonian,
			Clock:   clock,
		}),
		Cache:    weather.NewCache(p.Store, clock),
		Narrator: p.Narratives,
		Location: cfg.LocationName,
		CacheTTL: cfg.CacheTTL,
		Logger:   log.With().Str("component", "weather").Logger(),
	})

	return p, nil
}

// upstream creates a registered resilient client that logs breaker
// transitions.
func (p *Pipeline) upstream(name string, clock clockwork.Clock, opts Options) *resilience.Client {
	log := opts.Logger
	cfg := resilience.DefaultClientConfig(name)
	cfg.Clock = clock
	cfg.Transport = opts.Transport
	cfg.Registry = p.Registry
	if opts.Policy != nil {
		cfg.Policy = *opts.Policy
	}
	cfg.CircuitBreaker.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().
			Str("provider", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
	return resilience.NewClient(cfg)
}
