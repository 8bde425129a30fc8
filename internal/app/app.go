package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"ermtutor/internal/chunker"
	"ermtutor/internal/config"
	"ermtutor/internal/domain"
	"ermtutor/internal/embedding"
	"ermtutor/internal/embedding/cache"
	"ermtutor/internal/embedding/hashing"
	openaiEmb "ermtutor/internal/embedding/openai"
	"ermtutor/internal/generation"
	"ermtutor/internal/kv/redis"
	"ermtutor/internal/loader"
	"ermtutor/internal/metrics"
	"ermtutor/internal/prompt"
	"ermtutor/internal/service"
	"ermtutor/internal/vectorstore"
)

// App is the assembled tutor with the resources it owns.
type App struct {
	Tutor  *service.Tutor
	Config *config.AppConfig

	checks map[string]domain.HealthChecker
	redis  *redis.Store
	logger *zap.Logger
}

// Options adjust the assembly for one run.
type Options struct {
	ForceRebuild bool
	// Generator replaces the hosted chat model when non-nil.
	Generator domain.Generator
}

// New builds every component from cfg. Nothing is indexed until Tutor.Init.
// A missing API key for a hosted model fails here.
func New(cfg *config.AppConfig, opts Options, logger *zap.Logger) (*App, error) {
	metrics.Register()

	a := &App{Config: cfg, checks: map[string]domain.HealthChecker{}, logger: logger}

	emb, err := a.buildEmbedder()
	if err != nil {
		a.Close()
		return nil, err
	}

	gen := opts.Generator
	if gen == nil {
		gen, err = buildGenerator(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	ch, err := chunker.NewCharacterChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		a.Close()
		return nil, err
	}

	asm, err := prompt.New(cfg.Prompt.Template)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := vectorstore.New(cfg.VectorStore, emb.Name(), emb.Dimension(), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	src := loader.New(cfg.Materials.Dir, cfg.Materials.Pattern, loader.PDFText, logger)

	a.Tutor = service.New(service.Deps{
		Loader:    src,
		Chunker:   ch,
		Embedder:  emb,
		Store:     store,
		Prompt:    asm,
		Generator: gen,
	}, service.Options{
		TopK:             cfg.Retrieval.TopK,
		MinScore:         cfg.Retrieval.MinScore,
		BatchSize:        cfg.Embedder.BatchSize,
		EmbedTimeout:     seconds(cfg.Embedder.TimeoutSecs),
		GenerateTimeout:  seconds(cfg.Generator.TimeoutSecs),
		Retries:          cfg.Generator.Retries,
		ForceRebuild:     opts.ForceRebuild,
		RebuildOnCorrupt: cfg.RebuildOnCorrupt(),
		ShowSources:      cfg.Chat.ShowSources,
		PreviewChars:     cfg.Chat.PreviewChars,
	}, logger)

	logger.Info("Tutor assembled",
		zap.String("materials", cfg.Materials.Dir),
		zap.String("embedder", emb.Name()),
		zap.Int("dimensions", emb.Dimension()),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("generator", cfg.Generator.Model),
		zap.Bool("embedding_cache", a.redis != nil),
	)
	return a, nil
}

// HealthChecks returns the backends the tutor does not check itself.
func (a *App) HealthChecks() map[string]domain.HealthChecker { return a.checks }

// Close releases the vector store and the cache connection.
func (a *App) Close() {
	if a.Tutor != nil {
		if err := a.Tutor.Close(); err != nil {
			a.logger.Warn("Failed to close vector store", zap.Error(err))
		}
	}
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
}

// buildEmbedder assembles the decorator chain: provider -> cached -> instrumented.
func (a *App) buildEmbedder() (domain.Embedder, error) {
	cfg := a.Config.Embedder
	var base domain.Embedder
	switch cfg.Type {
	case "hashing":
		h, err := hashing.NewEmbedder(cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		base = h
	case "openai", "":
		key, err := a.Config.EmbedderAPIKey()
		if err != nil {
			return nil, err
		}
		o, err := openaiEmb.NewEmbedder(openaiEmb.Config{
			APIKey:     key,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    seconds(cfg.TimeoutSecs),
		})
		if err != nil {
			return nil, err
		}
		base = o
	default:
		return nil, fmt.Errorf("unknown embedder type %q: %w", cfg.Type, domain.ErrConfiguration)
	}

	emb := base
	if cfg.Cache.Enabled {
		st, err := redis.NewStore(redis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
			TTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w: %w", domain.ErrConfiguration, err)
		}
		a.redis = st
		a.checks["embedding_cache"] = st
		emb = cache.New(base, st, cfg.Cache.KeyPrefix, metrics.EmbeddingCacheTotal, a.logger)
	}

	provider := cfg.Type
	if provider == "" {
		provider = "openai"
	}
	return embedding.NewInstrumentedEmbedder(emb, provider, a.logger), nil
}

func buildGenerator(cfg *config.AppConfig, logger *zap.Logger) (domain.Generator, error) {
	key, err := cfg.GeneratorAPIKey()
	if err != nil {
		return nil, err
	}
	return generation.NewOpenAI(generation.Config{
		APIKey:      key,
		BaseURL:     cfg.Generator.BaseURL,
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		Timeout:     seconds(cfg.Generator.TimeoutSecs),
	}, logger)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
