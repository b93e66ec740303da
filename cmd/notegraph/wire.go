package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/ai"
	"github.com/xxxsen/notegraph/internal/chat"
	"github.com/xxxsen/notegraph/internal/config"
	"github.com/xxxsen/notegraph/internal/embedcache"
	"github.com/xxxsen/notegraph/internal/relevance"
	"github.com/xxxsen/notegraph/internal/repo"
	"github.com/xxxsen/notegraph/internal/service"
	"github.com/xxxsen/notegraph/internal/suggest"
)

type application struct {
	cfg       *config.Config
	db        *sql.DB
	noteRepo  *repo.NoteRepo
	cacheRepo *repo.EmbeddingCacheRepo
	notes     *service.NoteService
	ai        *service.AIService
	links     *service.LinkService
	graphs    *service.GraphService
	assistant *service.AssistantService
}

func (a *application) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildGenerators(items []config.AIProviderConfig) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(items))
	for _, item := range items {
		provider, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %s: %w", item.Name, err)
		}
		entries = append(entries, ai.GeneratorEntry{Name: item.Name, Generator: ai.NewGenerator(provider, item.Model)})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg config.AIConfig, cache embedcache.CacheStore) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Embedders))
	for _, item := range cfg.Embedders {
		provider, err := ai.NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedder %s: %w", item.Name, err)
		}
		var e ai.IEmbedder = ai.NewEmbedder(provider, item.Model)
		e = embedcache.WrapDBCacheToEmbedder(e, cache)
		e = embedcache.WrapLruCacheToEmbedder(e, cfg.EmbedCacheSize, time.Duration(cfg.EmbedCacheTTLSeconds)*time.Second)
		entries = append(entries, ai.EmbedderEntry{Name: item.Name, Embedder: e})
	}
	return ai.NewGroupEmbedder(entries), nil
}

func wire(cfg *config.Config, conn *sql.DB) (*application, error) {
	logger := logutil.GetLogger(context.Background())
	noteRepo := repo.NewNoteRepo(conn)
	embeddingRepo := repo.NewEmbeddingRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	generator, err := buildGenerators(cfg.AI.Generators)
	if err != nil {
		return nil, err
	}
	tagger, err := buildGenerators(cfg.AI.Taggers)
	if err != nil {
		return nil, err
	}
	embedder, err := buildEmbedder(cfg.AI, cacheRepo)
	if err != nil {
		return nil, err
	}
	if generator == nil {
		logger.Warn("no text generator configured, ai answers and tag suggestions are disabled")
	}
	if embedder == nil {
		logger.Warn("no embedder configured, semantic features are disabled")
	}

	manager := ai.NewManager(generator, tagger, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})
	var (
		tagGen     suggest.TagGenerator
		pageRanker suggest.PageRanker
		answerer   chat.Answerer
	)
	if generator != nil || tagger != nil {
		tagGen = manager
	}
	if generator != nil {
		pageRanker = manager
		answerer = manager
	}

	client := ai.NewEmbeddingClient(embedder, cfg.AI.EmbeddingDim, ai.TaskSemanticSimilarity)
	engine := relevance.NewEngine(client, relevance.NewPairFinder(cfg.Relevance.PairFinder, cfg.Relevance.HNSWNeighbors), relevance.Config{
		Concurrency:       cfg.Relevance.Concurrency,
		PairwiseWarnAbove: cfg.Relevance.PairwiseWarnAbove,
		EmbedMissing:      true,
	})
	logger.Info("relevance engine ready",
		zap.String("model", client.ModelName()),
		zap.Int("dim", client.Dimension()),
		zap.String("pair_finder", cfg.Relevance.PairFinder),
	)

	tags := suggest.NewTagSuggester(tagGen, suggest.TagConfig{
		Marker:  cfg.Suggest.TagMarker,
		MaxTags: cfg.Suggest.MaxTags,
	})
	related := suggest.NewRelatedSuggester(engine, pageRanker, suggest.RelatedConfig{
		SmallSetMax: cfg.Suggest.RelatedSmallSetMax,
		TopN:        cfg.Suggest.RelatedTopN,
		MinScore:    cfg.Suggest.RelatedMinScore,
	})
	aiService := service.NewAIService(noteRepo, embeddingRepo, client, tags, related, service.AIServiceConfig{
		BatchSize:         cfg.Jobs.BatchSize,
		EmbedDelay:        time.Duration(cfg.Jobs.EmbedDelaySeconds) * time.Second,
		RequestsPerSecond: cfg.Jobs.RequestsPerSecond,
	})
	links := service.NewLinkService(noteRepo, aiService, engine, service.LinkServiceConfig{
		AutoLink: suggest.AutoLinkConfig{
			MinChars: cfg.AutoLink.MinChars,
			Debounce: time.Duration(cfg.AutoLink.DebounceMs) * time.Millisecond,
			TopN:     cfg.AutoLink.TopN,
			MinScore: cfg.AutoLink.MinScore,
		},
		SessionSize: cfg.AutoLink.SessionSize,
		SessionTTL:  time.Duration(cfg.AutoLink.SessionTTLSeconds) * time.Second,
	})
	graphs := service.NewGraphService(aiService, engine, service.GraphServiceConfig{
		SemanticThreshold: cfg.Graph.SemanticThreshold,
		CacheSize:         cfg.Graph.CacheSize,
		CacheTTL:          time.Duration(cfg.Graph.CacheTTLSeconds) * time.Second,
	})
	assistant := service.NewAssistantService(aiService,
		chat.NewAssistant(engine, engine, answerer, chat.Config{SemanticThreshold: cfg.Graph.SemanticThreshold}),
		service.AssistantServiceConfig{
			PersistHistory: cfg.Chat.PersistHistory,
			SessionSize:    cfg.Chat.SessionSize,
			SessionTTL:     time.Duration(cfg.Chat.SessionTTLSeconds) * time.Second,
		})

	return &application{
		cfg:       cfg,
		db:        conn,
		noteRepo:  noteRepo,
		cacheRepo: cacheRepo,
		notes:     service.NewNoteService(noteRepo, embeddingRepo),
		ai:        aiService,
		links:     links,
		graphs:    graphs,
		assistant: assistant,
	}, nil
}
