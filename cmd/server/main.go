package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"fundseek/internal/api"
	"fundseek/internal/db/postgres"
	redisdb "fundseek/internal/db/redis"
	"fundseek/internal/domain/catalog"
	"fundseek/internal/domain/embedding"
	"fundseek/internal/domain/history"
	"fundseek/internal/platform/config"
	applog "fundseek/internal/platform/log"
	"fundseek/internal/provider/openai"
	"fundseek/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.Ping(); err != nil {
		applog.Fatalf("❌ Failed to ping database: %v", err)
	}
	applog.Info("✅ Connected to PostgreSQL")

	catalogStore := postgres.NewCatalogStore(db)
	historyStore := postgres.NewHistoryStore(db)
	embeddingCache := postgres.NewEmbeddingCache(db)

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer migrateCancel()
	if err := historyStore.EnsureTable(migrateCtx); err != nil {
		applog.Warnf("⚠️  Failed to ensure chat_history_messages table: %v", err)
	} else {
		applog.Info("✅ Chat history table ready")
	}
	if err := embeddingCache.EnsureTable(migrateCtx, cfg.Embedding.Dims); err != nil {
		applog.Warnf("⚠️  Failed to ensure embeddings_cache table: %v", err)
	} else {
		applog.Info("✅ Embeddings cache table ready")
	}

	finder := catalog.NewFinder(catalogStore, &catalog.FinderConfig{
		MatchThreshold:  cfg.Search.MatchThreshold,
		MatchCount:      cfg.Search.MatchCount,
		DefaultPageSize: cfg.Search.DefaultPageSize,
	})
	resolver := catalog.NewResolver(catalogStore)

	var embedder embedding.Embedder
	if cfg.Embedding.APIKey != "" {
		embedder = embedding.NewGeminiEmbedder(embedding.GeminiEmbedderConfig{
			BaseURL:        cfg.Embedding.BaseURL,
			APIKey:         cfg.Embedding.APIKey,
			Model:          cfg.Embedding.Model,
			Dims:           cfg.Embedding.Dims,
			TimeoutSeconds: cfg.Embedding.HTTPTimeoutSeconds,
		})
		queryEmbeddings := embedding.NewService(embeddingCache, embedder, embedding.RetryPolicy{
			MaxRetries: cfg.Embedding.CacheMaxRetries,
			BaseDelay:  time.Duration(cfg.Embedding.BaseDelaySeconds) * time.Second,
			MaxDelay:   time.Duration(cfg.Embedding.MaxDelaySeconds) * time.Second,
		})
		finder.SetEmbedder(queryEmbeddings)
		applog.Infof("✅ Query embedder initialized (model: %s, dims: %d)", cfg.Embedding.Model, cfg.Embedding.Dims)
	} else {
		applog.Info("ℹ️  No GEMINI_API_KEY set, similarity search disabled (full-text only)")
	}

	if cfg.Redis.URL != "" {
		if opt, err := goredis.ParseURL(cfg.Redis.URL); err == nil {
			cacheRedis := goredis.NewClient(opt)
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = cacheRedis.Ping(pingCtx).Err()
			pingCancel()
			if err != nil {
				applog.Warnf("⚠️  Redis ping failed, search cache disabled: %v", err)
			} else {
				finder.SetCache(redisdb.NewSearchCache(cacheRedis, cfg.Search.CacheTTLSeconds))
				applog.Infof("✅ Search cache initialized (TTL: %ds)", cfg.Search.CacheTTLSeconds)
			}
		} else {
			applog.Warnf("⚠️  Redis URL invalid, search cache disabled: %v", err)
		}
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	server := api.NewServer(serverConfig, finder, resolver, catalogStore)

	if cfg.Chat.APIKey != "" {
		llm := openai.New(openai.Config{
			APIKey:  cfg.Chat.APIKey,
			BaseURL: cfg.Chat.BaseURL,
		})
		chat := api.NewChatHandler(llm, history.NewStore(historyStore), finder, catalogStore, api.ChatConfig{
			Model:          cfg.Chat.Model,
			Temperature:    cfg.Chat.Temperature,
			MaxToolRounds:  cfg.Chat.MaxToolRounds,
			WhitelistTools: cfg.Chat.WhitelistTools,
		})
		server.SetChat(chat)
		applog.Infof("✅ Chat agent initialized (model: %s)", cfg.Chat.Model)
	} else {
		applog.Info("ℹ️  No CHAT_LLM_API_KEY set, chat API disabled")
	}

	if embedder != nil {
		jobs := worker.New(postgres.NewJobStore(db), embedder, cfg.Worker.QueueName)
		server.SetEmbed(api.NewEmbedHandler(jobs))
		applog.Infof("✅ Embedding worker initialized (queue: %s)", cfg.Worker.QueueName)
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}
