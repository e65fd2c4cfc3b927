package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"transcript-chat/internal/config"
	"transcript-chat/internal/db"
	"transcript-chat/internal/handlers"
	"transcript-chat/internal/repositories"
	"transcript-chat/internal/routes"
	"transcript-chat/internal/services"
	"transcript-chat/internal/workers"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewServer wires the full engine. Missing backends degrade the surface
// instead of failing startup: without Redis or ChromaDB only the health
// and home routes are registered.
func NewServer() *http.Server {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	llmClient := initializeLLMClient(logger)
	embeddingClient := initializeEmbeddingClient(logger)
	redisClient, vectorRepo := initializeBackends(logger)

	healthChecks := map[string]handlers.DependencyChecker{
		"llm":       llmClient.HealthCheck,
		"embedding": embeddingClient.HealthCheck,
	}

	h := &routes.Handlers{
		Home: handlers.HomeHandler,
	}

	if redisClient != nil && vectorRepo != nil {
		client := redisClient.GetClient()
		settingsRepo := repositories.NewRedisSettingsRepository(client)
		transcriptRepo := repositories.NewRedisTranscriptRepository(client)
		conversationRepo := repositories.NewRedisConversationRepository(client)
		jobRepo := repositories.NewRedisJobRepository(client)

		cfgStore := config.NewStore(settingsRepo, logger)
		if err := cfgStore.Load(context.Background()); err != nil {
			logger.Printf("Failed to load stored settings, using defaults: %v", err)
		}

		promptService := services.NewPromptService(settingsRepo, logger)
		chunkingService := services.NewChunkingService(cfgStore, logger)
		modelContextService := services.NewModelContextService(llmClient, settingsRepo, logger)
		retrievalService := services.NewRetrievalService(vectorRepo, embeddingClient, logger)
		memoryService := services.NewMemoryService(llmClient, conversationRepo, promptService, logger)
		indexingService := services.NewIndexingService(transcriptRepo, vectorRepo, chunkingService, embeddingClient, retrievalService, logger)
		transcriptService := services.NewTranscriptService(transcriptRepo, vectorRepo, jobRepo, logger)
		// One locker across both chat services: a project turn and a
		// transcript turn on the same conversation must not interleave
		turnLocks := services.NewConversationLocker()
		chatService := services.NewChatService(cfgStore, llmClient, retrievalService, memoryService, modelContextService, promptService, transcriptRepo, conversationRepo, turnLocks, logger)
		projectChatService := services.NewProjectChatService(cfgStore, llmClient, retrievalService, memoryService, promptService, transcriptRepo, conversationRepo, turnLocks, logger)

		pool := startWorkers(jobRepo, indexingService, logger)

		h.Transcripts = handlers.NewTranscriptHandler(transcriptService, pool, logger)
		h.Chat = handlers.NewChatHandler(chatService, projectChatService, logger)
		h.Search = handlers.NewSearchHandler(retrievalService, logger)
		h.Settings = handlers.NewSettingsHandler(cfgStore, settingsRepo, modelContextService, logger)

		healthChecks["redis"] = redisClient.Ping
		healthChecks["vector_store"] = vectorRepo.Ping

		logger.Println("Conversation engine initialized")
		logger.Println("Indexing worker started for background jobs")
	} else {
		logger.Println("Conversation engine disabled - backends not available")
		logger.Println("Only health and home endpoints will be registered")
	}

	h.Health = handlers.NewHealthHandler(healthChecks, logger)

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	return &http.Server{
		Addr:    serverAddr(),
		Handler: corsMiddleware(router),
	}
}

func serverAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}

// initializeLLMClient configures the language model client
func initializeLLMClient(logger *log.Logger) services.LLMClientInterface {
	baseURL := os.Getenv("LLM_BASE_URL")
	if baseURL == "" {
		baseURL = services.LMStudioBaseURL
	}
	model := os.Getenv("LLM_MODEL")
	if model == "" {
		model = config.DefaultChatModel
	}

	logger.Printf("Initializing LLM client: %s (model: %s)", baseURL, model)
	return services.NewLLMService(baseURL, model)
}

// initializeEmbeddingClient configures the embedding provider
func initializeEmbeddingClient(logger *log.Logger) services.EmbeddingClientInterface {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = config.DefaultEmbeddingModel
	}

	logger.Printf("Initializing embedding client (model: %s)", model)
	return services.NewOllamaEmbeddingClient(baseURL, model)
}

// initializeBackends connects Redis and ChromaDB. Either failing returns
// nils so the server comes up degraded.
func initializeBackends(logger *log.Logger) (*db.RedisClient, repositories.VectorRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisConfig := getRedisConfig()
	logger.Printf("Connecting to Redis: %s:%d (DB: %d)", redisConfig.Host, redisConfig.Port, redisConfig.DB)

	redisClient, err := db.NewRedisClient(redisConfig)
	if err != nil {
		logger.Printf("Failed to create Redis client: %v", err)
		return nil, nil
	}
	if err := redisClient.Ping(ctx); err != nil {
		logger.Printf("Redis connection failed: %v", err)
		logger.Println("Hint: ensure Redis is running (docker run -d -p 6379:6379 redis:7-alpine)")
		return nil, nil
	}
	logger.Println("Redis connected")

	chromaConfig := getChromaConfig()
	logger.Printf("Connecting to ChromaDB: %s:%d", chromaConfig.Host, chromaConfig.Port)

	chromaClient := db.NewChromaDBClient(chromaConfig)
	if err := chromaClient.Heartbeat(ctx); err != nil {
		logger.Printf("ChromaDB connection failed: %v", err)
		logger.Println("Hint: ensure ChromaDB is running (docker run -d -p 8000:8000 chromadb/chroma)")
		return nil, nil
	}
	logger.Println("ChromaDB connected")

	vectorRepo, err := repositories.NewChromaVectorRepository(ctx, chromaClient)
	if err != nil {
		logger.Printf("Failed to initialize chunk collection: %v", err)
		return nil, nil
	}

	return redisClient, vectorRepo
}

// getRedisConfig reads Redis configuration from environment variables
func getRedisConfig() db.RedisConfig {
	config := db.DefaultRedisConfig()

	if host := os.Getenv("REDIS_HOST"); host != "" {
		config.Host = host
	}
	if portStr := os.Getenv("REDIS_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Port = port
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Password = password
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if dbNum, err := strconv.Atoi(dbStr); err == nil {
			config.DB = dbNum
		}
	}
	if poolSizeStr := os.Getenv("REDIS_POOL_SIZE"); poolSizeStr != "" {
		if poolSize, err := strconv.Atoi(poolSizeStr); err == nil {
			config.PoolSize = poolSize
		}
	}

	return config
}

// getChromaConfig reads ChromaDB configuration from environment variables
func getChromaConfig() db.ChromaDBConfig {
	config := db.ChromaDBConfig{
		Host:     "localhost",
		Port:     8000,
		Tenant:   "default_tenant",
		Database: "default_database",
		Timeout:  30 * time.Second,
	}

	if host := os.Getenv("CHROMA_HOST"); host != "" {
		config.Host = host
	}
	if portStr := os.Getenv("CHROMA_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Port = port
		}
	}
	if tenant := os.Getenv("CHROMA_TENANT"); tenant != "" {
		config.Tenant = tenant
	}
	if database := os.Getenv("CHROMA_DATABASE"); database != "" {
		config.Database = database
	}

	return config
}

// startWorkers starts the background indexing worker and returns the pool
// managing it so handlers can report worker stats
func startWorkers(jobRepo repositories.JobRepository, indexing *services.IndexingService, logger *log.Logger) *workers.WorkerPool {
	pool := workers.NewWorkerPool()
	pool.AddWorker(workers.NewIndexingWorker(workers.IndexingWorkerConfig{
		WorkerConfig: workers.DefaultWorkerConfig("indexing-worker"),
		JobRepo:      jobRepo,
		Indexing:     indexing,
		Logger:       &workerLogger{logger: logger},
	}))

	if err := pool.StartAll(context.Background()); err != nil {
		logger.Printf("Failed to start indexing worker: %v", err)
	}
	return pool
}

// workerLogger wraps log.Logger to implement workers.Logger
type workerLogger struct {
	logger *log.Logger
}

func (l *workerLogger) Info(msg string, args ...interface{}) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *workerLogger) Error(msg string, args ...interface{}) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *workerLogger) Warn(msg string, args ...interface{}) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *workerLogger) Debug(msg string, args ...interface{}) {
	l.logger.Printf("[DEBUG] "+msg, args...)
}
