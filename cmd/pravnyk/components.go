package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"pravnyk/internal/adapters"
	"pravnyk/internal/config"
	"pravnyk/internal/embedding"
	"pravnyk/internal/ingest"
	"pravnyk/internal/legislation"
	"pravnyk/internal/orchestrator"
	"pravnyk/internal/patterns"
	"pravnyk/internal/scrape"
	"pravnyk/internal/sectionizer"
	"pravnyk/internal/store"
	"pravnyk/internal/synthesis"
	"pravnyk/internal/types"
)

// components is the wired system. Close releases the stores.
type components struct {
	meta    *store.MetadataStore
	vectors *store.VectorStore

	zakon   *adapters.ZakonOnlineClient
	rada    *adapters.RadaClient
	uploads *adapters.UploadParser

	gateway *embedding.Gateway
	llm     synthesis.Client

	sectionizer *sectionizer.Sectionizer
	worker      *ingest.Worker
	legislation *legislation.Service
	patterns    *patterns.Extractor
	orch        *orchestrator.Orchestrator
	scraper     *scrape.Manager
}

// build wires every component from the loaded config. The embedding
// gateway is mandatory only for commands that embed; callers that merely
// read can pass allowDegraded to proceed without it.
func build(cfg *config.Config, allowDegraded bool) (*components, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	meta, err := store.NewMetadataStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	vectors, err := store.NewVectorStore(cfg.VectorDatabasePath())
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	c := &components{meta: meta, vectors: vectors}

	gateway, err := buildGateway(cfg)
	if err != nil {
		if !allowDegraded {
			c.Close()
			return nil, err
		}
		logger.Warn("embedding gateway unavailable, semantic search disabled",
			zap.Error(err))
	}
	c.gateway = gateway

	c.llm = synthesis.NewGeminiClient(cfg.LLM)

	var assist sectionizer.ModelAssist
	if cfg.LLM.APIKey != "" {
		assist = sectionizer.NewSynthesisAssist(c.llm,
			synthesis.StrategyFor(types.BudgetQuick, cfg.LLM).Model)
	}
	c.sectionizer = sectionizer.New(assist)

	var zakonOpts []adapters.ZakonOnlineOption
	var radaOpts []adapters.RadaOption
	if cfg.Adapters.CacheFetches {
		cache, cerr := adapters.NewFetchCache(cfg.CachePath())
		if cerr != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open fetch cache: %w", cerr)
		}
		zakonOpts = append(zakonOpts, adapters.WithFetchCache(cache))
		radaOpts = append(radaOpts, adapters.WithRadaCache(cache))
	}
	c.zakon = adapters.NewZakonOnlineClient(
		cfg.Adapters.ZakonOnline.BaseURL,
		cfg.Adapters.ZakonOnline.AppToken,
		cfg.GetZakonOnlineInterval(),
		zakonOpts...,
	)
	c.rada = adapters.NewRadaClient(cfg.Adapters.Rada.BaseURL, cfg.GetRadaInterval(), radaOpts...)
	c.uploads = adapters.NewUploadParser(nil)

	var embedder ingest.Embedder
	if c.gateway != nil {
		embedder = c.gateway
	}
	c.worker = ingest.NewWorker(meta, vectors, c.zakon, c.sectionizer, embedder, ingest.Config{
		Concurrency:   cfg.Ingest.Concurrency,
		EmbedSections: embedSections(cfg),
	})

	var legEmbedder legislation.Embedder
	if c.gateway != nil {
		legEmbedder = c.gateway
	}
	c.legislation = legislation.NewService(meta, vectors, c.rada, legEmbedder)

	var patEmbedder patterns.Embedder
	if c.gateway != nil {
		patEmbedder = c.gateway
	}
	c.patterns = patterns.NewExtractor(meta, patEmbedder)

	var orchEmbedder orchestrator.Embedder
	if c.gateway != nil {
		orchEmbedder = c.gateway
	}
	c.orch = orchestrator.New(orchestrator.Deps{
		Meta:            meta,
		Vectors:         vectors,
		Legislation:     c.legislation,
		Patterns:        c.patterns,
		Embedder:        orchEmbedder,
		LLM:             c.llm,
		LLMConfig:       cfg.LLM,
		Uploads:         c.uploads,
		Sectionizer:     c.sectionizer,
		Worker:          c.worker,
		Query:           cfg.Query,
		DefaultDeadline: cfg.GetDefaultDeadline(),
	})

	c.scraper = scrape.NewManager(c.zakon, c.worker, scrape.Options{
		ThrottleDepth: int64(cfg.Ingest.Concurrency),
	})

	return c, nil
}

func buildGateway(cfg *config.Config) (*embedding.Gateway, error) {
	embCfg := embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		Dimensions:     cfg.Embedding.Dimensions,
		MaxBatch:       cfg.Embedding.MaxBatch,
		MaxRetries:     cfg.Embedding.MaxRetries,
	}
	engine, err := embedding.NewEngine(embCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding engine: %w", err)
	}
	return embedding.NewGateway(engine, embCfg)
}

func embedSections(cfg *config.Config) []types.SectionType {
	out := make([]types.SectionType, 0, len(cfg.Ingest.EmbedSections))
	for _, s := range cfg.Ingest.EmbedSections {
		out = append(out, types.SectionType(s))
	}
	return out
}

// Close releases the stores; adapters and clients hold no resources
// beyond pooled HTTP connections.
func (c *components) Close() {
	if c.vectors != nil {
		c.vectors.Close()
	}
	if c.meta != nil {
		c.meta.Close()
	}
}
