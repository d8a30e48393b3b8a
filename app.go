package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"meridian/pkg/cluster"
	"meridian/pkg/config"
	"meridian/pkg/content"
	"meridian/pkg/crawler"
	"meridian/pkg/dedup"
	"meridian/pkg/dispatch"
	"meridian/pkg/embedding"
	"meridian/pkg/httpclient"
	"meridian/pkg/ingest"
	"meridian/pkg/llm"
	"meridian/pkg/logger"
	"meridian/pkg/metrics"
	"meridian/pkg/queue"
	"meridian/pkg/retry"
	"meridian/pkg/sources"
	"meridian/pkg/store"
	"meridian/pkg/story"
)

// app holds the configuration and the lazily opened connections shared by every command.
type app struct {
	cfg          *config.Config
	log          logger.Logger
	registry     *sources.Registry
	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics

	st      *store.Store
	closers []func() error
}

func newApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry, err := sources.Load(cfg.Sources.Path)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded source registry", logger.Int("sources", registry.Len()))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &app{
		cfg:          cfg,
		log:          log,
		registry:     registry,
		promRegistry: promRegistry,
		metrics:      metrics.New(promRegistry),
	}, nil
}

// Close releases everything opened by the app, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Error during shutdown", logger.Error(err))
		}
	}
	_ = a.log.Sync()
}

func (a *app) store(ctx context.Context) (*store.Store, error) {
	if a.st != nil {
		return a.st, nil
	}

	conn, err := store.Connect(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, conn.Close)

	opts := []store.Option{
		store.WithQueryTimeout(a.cfg.Database.QueryTimeout),
		store.WithEmbeddingDims(a.cfg.Database.EmbeddingDims),
	}
	if conn.SDK != nil {
		opts = append(opts, store.WithRPC(conn.SDK))
		a.log.Info("Similarity search routed through Supabase RPC")
	}
	a.st = store.New(conn.DB, opts...)
	return a.st, nil
}

func (a *app) dispatcher() (*dispatch.Dispatcher, error) {
	producer, err := queue.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, producer.Close)
	return dispatch.New(a.registry, producer, retry.DefaultConfig(), a.log, a.metrics), nil
}

// runner wires the full ingestion path: crawler, extractor, dedup, LLM, embeddings, clustering
// and the store.
func (a *app) runner(ctx context.Context) (*ingest.Runner, error) {
	cfg := a.cfg

	st, err := a.store(ctx)
	if err != nil {
		return nil, err
	}

	redisClient, err := dedup.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, redisClient.Close)
	deduper := dedup.New(dedup.NewRedisSet(redisClient, cfg.Redis.SetKey), retry.DefaultConfig(), cfg.Redis.Timeout)

	llmClient, err := llm.New(llm.Config{
		APIKey:        cfg.Anthropic.APIKey,
		AnalysisModel: cfg.Anthropic.AnalysisModel,
		TextModel:     cfg.Anthropic.TextModel,
		Timeout:       cfg.Anthropic.Timeout,
		MaxRetries:    2,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("anthropic client: %w", err)
	}

	embedder, err := embedding.NewCohere(embedding.Config{
		APIKey:  cfg.Cohere.APIKey,
		Model:   cfg.Cohere.Model,
		Timeout: cfg.Cohere.Timeout,
		Dims:    cfg.Database.EmbeddingDims,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("cohere client: %w", err)
	}

	pages := httpclient.NewClient(httpclient.Config{UserAgent: cfg.Crawler.UserAgent, Timeout: cfg.Crawler.RequestTimeout})

	return ingest.NewRunner(ingest.Deps{
		Sources:   a.registry,
		Crawler:   crawler.New(pages, crawler.Config{MaxDepth: cfg.Crawler.MaxDepth, Delay: cfg.Crawler.Delay}, a.log, a.metrics),
		Extractor: content.NewExtractor(pages),
		Dedup:     deduper,
		Analyzer:  llmClient,
		Embedder:  embedder,
		Clusterer: cluster.New(embedder, st, cluster.Config{Threshold: cfg.Cluster.SimilarityThreshold(), Limit: cfg.Cluster.Limit}, a.log),
		Stories:   story.NewConsolidator(st, llmClient, a.log, a.metrics),
		Articles:  st,
	}, ingest.Config{Workers: cfg.Ingest.Workers, Delay: cfg.Crawler.Delay}, a.log, a.metrics), nil
}
