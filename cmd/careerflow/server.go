package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/coach"
	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/agent/memory"
	"github.com/BaSui01/careerflow/agent/persistence"
	"github.com/BaSui01/careerflow/api"
	"github.com/BaSui01/careerflow/api/handlers"
	"github.com/BaSui01/careerflow/config"
	"github.com/BaSui01/careerflow/internal/cache"
	"github.com/BaSui01/careerflow/internal/database"
	"github.com/BaSui01/careerflow/internal/metrics"
	"github.com/BaSui01/careerflow/internal/migration"
	"github.com/BaSui01/careerflow/internal/server"
	"github.com/BaSui01/careerflow/internal/telemetry"
	"github.com/BaSui01/careerflow/llm"
	"github.com/BaSui01/careerflow/llm/embedding"
	"github.com/BaSui01/careerflow/llm/observability"
	"github.com/BaSui01/careerflow/llm/providers"
	"github.com/BaSui01/careerflow/llm/providers/openai"
	"github.com/BaSui01/careerflow/llm/retry"
	"github.com/BaSui01/careerflow/llm/tools"
)


// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 CareerFlow 的主服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施，未启用时为 nil
	pool  *database.PoolManager
	cache *cache.Manager

	transcripts *persistence.TranscriptStore
	sessions    *conversation.Manager
	memories    []*memory.VectorMemory

	// Handlers
	healthHandler     *handlers.HealthHandler
	chatHandler       *handlers.ChatHandler
	transcriptHandler *handlers.TranscriptHandler
	profileHandler    *handlers.ProfileHandler
	agentHandler      *handlers.AgentHandler

	metricsCollector *metrics.Collector
	costs            *observability.CostTracker

	// 后台 goroutine（限流清理、连接池采样）的生命周期
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务。任一步失败时已打开的资源由 Shutdown 释放。
func (s *Server) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// 1. 指标收集器
	s.metricsCollector = metrics.NewCollector("careerflow", s.logger)

	// 2. 存储：数据库与 Redis
	if err := s.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	if err := s.initCache(); err != nil {
		return fmt.Errorf("failed to init cache: %w", err)
	}

	// 3. 会话与 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. HTTP 服务器
	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("coaching_enabled", s.chatHandler != nil),
		zap.Bool("transcripts_enabled", s.transcripts != nil),
	)
	return nil
}

// =============================================================================
// 🗄️ 存储初始化
// =============================================================================

func (s *Server) initDatabase(ctx context.Context) error {
	dbCfg := s.cfg.Database
	if !dbCfg.Enabled {
		s.logger.Info("Database disabled, transcripts will not be persisted")
		return nil
	}

	poolCfg := database.DefaultPoolConfig()
	if dbCfg.MaxOpenConns > 0 {
		poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	}
	if dbCfg.MaxIdleConns > 0 {
		poolCfg.MaxIdleConns = min(dbCfg.MaxIdleConns, poolCfg.MaxOpenConns)
	}
	if dbCfg.ConnMaxLifetime > 0 {
		poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}

	pool, err := database.Open(dbCfg.Driver, dbCfg.DSN(), poolCfg, s.logger)
	if err != nil {
		return err
	}
	s.pool = pool

	collector := s.metricsCollector
	if err := database.ObserveQueries(pool.DB(), func(op string, d time.Duration) {
		collector.RecordDBQuery(dbCfg.Driver, op, d)
	}); err != nil {
		return fmt.Errorf("register query observer: %w", err)
	}
	if err := collector.RegisterPool("database", func() metrics.PoolStats {
		st := pool.Stats()
		return metrics.PoolStats{Open: st.OpenConnections, Idle: st.Idle, Waits: uint64(st.WaitCount)}
	}); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}

	if dbCfg.AutoMigrate {
		if err := s.migrate(ctx); err != nil {
			return err
		}
	}

	store, err := persistence.NewTranscriptStore(pool, s.logger)
	if err != nil {
		return err
	}
	s.transcripts = store
	return nil
}

// migrate 复用已打开的连接执行 up
func (s *Server) migrate(ctx context.Context) error {
	migrator, err := migration.NewMigratorFromDB(s.cfg.Database.Driver, s.pool.SQLDB(), migration.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	version, dirty, err := migrator.Version(ctx)
	if err == nil {
		s.logger.Info("Database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

func (s *Server) initCache() error {
	rc := s.cfg.Redis
	if !rc.Enabled {
		return nil
	}
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = rc.Addr
	cacheCfg.Password = rc.Password
	cacheCfg.DB = rc.DB
	if rc.KeyPrefix != "" {
		cacheCfg.KeyPrefix = rc.KeyPrefix
	}
	if rc.PoolSize > 0 {
		cacheCfg.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cacheCfg.MinIdleConns = rc.MinIdleConns
	}

	m, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		return err
	}
	s.cache = m
	return s.metricsCollector.RegisterPool("redis", func() metrics.PoolStats {
		st := m.PoolStats()
		return metrics.PoolStats{
			Open:     int(st.TotalConns),
			Idle:     int(st.IdleConns),
			Waits:    uint64(st.Misses),
			Timeouts: uint64(st.Timeouts),
		}
	})
}

// =============================================================================
// 🔧 Handlers 初始化
// =============================================================================

// initHandlers 组装会话、记忆、LLM 与工具，并创建所有 handlers
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		s.healthHandler.RegisterCheck("database", s.pool.Ping, handlers.Degradable())
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck("redis", s.cache.Ping)
	}

	// 活跃会话索引：启用 Redis 时跨实例可见
	var index conversation.SessionIndex
	if s.cache != nil {
		index = conversation.NewCacheIndex(s.cache, "")
	}
	s.sessions = conversation.NewManager(index, s.logger)
	s.healthHandler.RegisterInfo("active_sessions", func() any { return s.sessions.Len() })

	var reader handlers.TranscriptReader
	if s.transcripts != nil {
		reader = s.transcripts
	}
	s.transcriptHandler = handlers.NewTranscriptHandler(reader, s.sessions, s.logger)

	if s.cfg.LLM.APIKey == "" {
		s.logger.Warn("LLM API key not configured, coaching endpoints disabled")
		return nil
	}
	return s.initCoaching()
}

// initCoaching 组装辅导团队：记忆 → LLM → 工具 → 阵容 → 会话工厂
func (s *Server) initCoaching() error {
	if err := checkRoster(s.cfg.Session); err != nil {
		return err
	}

	embedder, err := s.newEmbedder()
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	core, err := s.newVectorMemory(s.cfg.Memory.CoreIndex, embedder)
	if err != nil {
		return fmt.Errorf("create core memory: %w", err)
	}
	profile, err := s.newVectorMemory(s.cfg.Memory.ProfileIndex, embedder)
	if err != nil {
		return fmt.Errorf("create profile memory: %w", err)
	}

	provider, err := s.newProvider()
	if err != nil {
		return fmt.Errorf("create llm provider: %w", err)
	}
	// 模型不可达时仍接受连接，会话会以 1011 结束
	s.healthHandler.RegisterCheck("llm:"+provider.Name(), func(ctx context.Context) error {
		_, err := provider.HealthCheck(ctx)
		return err
	}, handlers.Degradable())

	obsMetrics, err := observability.NewMetrics(
		observability.WithMeterProvider(s.telemetry.MeterProvider()),
		observability.WithTracerProvider(s.telemetry.TracerProvider()),
	)
	if err != nil {
		return fmt.Errorf("create llm metrics: %w", err)
	}
	s.costs = observability.NewCostTracker(observability.NewCostCalculator())
	wrap := func(agent string, p llm.Provider) llm.Provider {
		return s.metricsCollector.WrapProvider(observability.NewInstrumentedProvider(p, agent, obsMetrics, s.costs, s.logger))
	}

	registry, err := s.newToolRegistry(wrap("analyzer", provider))
	if err != nil {
		return err
	}
	executor := tools.NewExecutor(registry, s.logger,
		tools.WithExecutionObserver(func(name string, elapsed time.Duration, err error) {
			s.metricsCollector.RecordToolCall(name, elapsed, err)
			obsMetrics.RecordToolCall(name, elapsed, err)
		}),
	)

	sc := s.cfg.Session
	roster := coach.NewRoster(coach.RosterConfig{
		Model:             s.cfg.LLM.AgentModel,
		Temperature:       float32(s.cfg.LLM.Temperature),
		MaxTokens:         s.cfg.LLM.MaxTokens,
		ShortTermCapacity: sc.ShortTermCapacity,
		RecallTopK:        sc.RecallTopK,
	}, provider, registry, executor,
		coach.WithCoreMemory(core),
		coach.WithProviderWrapper(wrap),
		coach.WithRosterLogger(s.logger),
	)

	observers := []conversation.Observer{metrics.NewSessionObserver(s.metricsCollector)}
	if s.transcripts != nil {
		observers = append(observers, persistence.NewRecorder(s.transcripts, s.logger))
	}
	factory := coach.NewSessionFactory(coach.SessionFactoryConfig{
		MaxTurns:          sc.MaxTurns,
		ProxyID:           sc.ProxyID,
		HumanInputTimeout: sc.HumanInputTimeout,
		CVHookEnabled:     sc.CVHook.Enabled,
		CVHook: coach.CVHookConfig{
			Query:         sc.CVHook.Query,
			TopK:          sc.CVHook.TopK,
			PreviewChars:  sc.CVHook.PreviewChars,
			SessionScoped: sc.CVHook.SessionScoped,
		},
	}, roster,
		coach.WithProfileMemory(profile),
		coach.WithSessionObservers(observers...),
		coach.WithHumanWaitObserver(s.metricsCollector.RecordHumanWait),
		coach.WithFactoryLogger(s.logger),
	)

	s.chatHandler = handlers.NewChatHandler(factory, s.sessions, handlers.ChatConfig{
		OriginPatterns: s.cfg.Server.WSOriginPatterns,
		KeepAlive:      s.cfg.Server.WSKeepAlive,
	}, s.logger, handlers.WithSinkWrapper(s.metricsCollector.CountingSink))
	s.profileHandler = handlers.NewProfileHandler(profile, s.logger)
	s.agentHandler = handlers.NewAgentHandler(roster.Describe(), sc.ProxyID, s.logger)

	s.logger.Info("Coaching team initialized",
		zap.String("gateway", coach.TriageAgentID),
		zap.Strings("specialists", coach.SpecialistIDs()),
		zap.String("proxy", sc.ProxyID),
		zap.String("memory_backend", s.cfg.Memory.Backend),
		zap.Bool("web_search", registry.Has(tools.WebSearchToolName)),
	)
	return nil
}

// checkRoster 配置中的阵容必须与内置 Agent 一致，顺序决定 specialist 轮转顺序
func checkRoster(sc config.SessionConfig) error {
	if sc.GatewayID != coach.TriageAgentID {
		return fmt.Errorf("session.gateway_id %q does not match the built-in gateway %q", sc.GatewayID, coach.TriageAgentID)
	}
	if !slices.Equal(sc.SpecialistIDs, coach.SpecialistIDs()) {
		return fmt.Errorf("session.specialist_ids %v does not match the built-in specialists %v", sc.SpecialistIDs, coach.SpecialistIDs())
	}
	if sc.ProxyID == sc.GatewayID || slices.Contains(sc.SpecialistIDs, sc.ProxyID) {
		return fmt.Errorf("session.proxy_id %q collides with an agent id", sc.ProxyID)
	}
	return nil
}

// newProvider 创建 OpenAI（或 Azure OpenAI）provider 并加上重试
func (s *Server) newProvider() (llm.Provider, error) {
	lc := s.cfg.LLM
	pcfg := providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  lc.APIKey,
			BaseURL: lc.BaseURL,
			Model:   lc.AgentModel,
			Timeout: lc.Timeout,
		},
		Organization: lc.Organization,
	}
	if lc.Provider == "azure" {
		pcfg.Azure = &providers.AzureConfig{
			Endpoint:   lc.BaseURL,
			Deployment: lc.AgentModel,
			APIVersion: lc.APIVersion,
		}
	}
	base, err := openai.New(pcfg, s.logger)
	if err != nil {
		return nil, err
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = lc.MaxRetries
	policy.ShouldRetry = llm.IsRetryable
	return llm.NewRetryingProvider(base, policy, s.logger), nil
}

// newEmbedder 创建嵌入模型；启用 Redis 且配置了 TTL 时加一层缓存
func (s *Server) newEmbedder() (memory.Embedder, error) {
	ec, lc := s.cfg.Embedding, s.cfg.LLM
	ecfg := embedding.OpenAIConfig{
		APIKey:     firstNonEmpty(ec.APIKey, lc.APIKey),
		BaseURL:    firstNonEmpty(ec.BaseURL, lc.BaseURL),
		Model:      ec.Model,
		Timeout:    lc.Timeout,
		Dimensions: ec.Dimensions,
	}
	if lc.Provider == "azure" {
		ecfg.Azure = &embedding.AzureConfig{
			Endpoint:   ecfg.BaseURL,
			Deployment: ec.Model,
			APIVersion: lc.APIVersion,
		}
	}
	p, err := embedding.NewOpenAIProvider(ecfg)
	if err != nil {
		return nil, err
	}
	var embedder memory.Embedder = memory.EmbedderFunc(p.EmbedDocuments)

	if s.cache != nil && s.cfg.Memory.EmbeddingCacheTTL > 0 {
		collector := s.metricsCollector
		embedder = memory.NewCachedEmbedder(embedder, s.cache, ec.Model, s.cfg.Memory.EmbeddingCacheTTL, s.logger).
			OnLookup(func(hit bool) {
				if hit {
					collector.RecordCacheHit("embedding")
				} else {
					collector.RecordCacheMiss("embedding")
				}
			})
	}
	return embedder, nil
}

// newVectorMemory 按 memory.backend 创建指定索引的长期记忆
func (s *Server) newVectorMemory(index string, embedder memory.Embedder) (*memory.VectorMemory, error) {
	var store memory.VectorStore
	switch s.cfg.Memory.Backend {
	case "qdrant":
		qc := s.cfg.Qdrant
		qs, err := memory.NewQdrantStore(memory.QdrantConfig{
			BaseURL:              qc.BaseURL,
			APIKey:               qc.APIKey,
			Collection:           index,
			Timeout:              qc.Timeout,
			AutoCreateCollection: true,
			Distance:             qc.Distance,
			VectorSize:           qc.VectorSize,
		}, s.logger)
		if err != nil {
			return nil, err
		}
		s.healthHandler.RegisterCheck("qdrant:"+index, func(ctx context.Context) error {
			_, err := qs.Count(ctx)
			return err
		})
		store = qs
	case "redis":
		if s.cache == nil {
			return nil, errors.New("redis backend requires redis.enabled")
		}
		rs, err := memory.NewRedisStore(s.cache.Client(), memory.RedisStoreConfig{
			Index:     index,
			KeyPrefix: s.cache.Key("memory:"),
		}, s.logger)
		if err != nil {
			return nil, err
		}
		store = rs
	default:
		store = memory.NewInMemoryStore(memory.InMemoryStoreConfig{Dimension: s.cfg.Embedding.Dimensions}, s.logger)
	}

	mem, err := memory.NewVectorMemory(index, store, embedder, s.logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	s.memories = append(s.memories, mem)
	return mem, nil
}

// newToolRegistry 注册分析工具，配置了 Brave key 时注册网页搜索
func (s *Server) newToolRegistry(toolProvider llm.Provider) (*tools.Registry, error) {
	registry := tools.NewRegistry(s.logger)

	if s.cfg.Search.BraveAPIKey != "" {
		brave, err := tools.NewBraveProvider(tools.BraveConfig{
			APIKey:   s.cfg.Search.BraveAPIKey,
			Endpoint: s.cfg.Search.Endpoint,
			Timeout:  s.cfg.Search.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create brave provider: %w", err)
		}
		wsCfg := tools.DefaultWebSearchToolConfig()
		wsCfg.Provider = brave
		if s.cache != nil && s.cfg.Search.CacheTTL > 0 {
			wsCfg.Provider = tools.NewCachedSearchProvider(brave, s.cache, s.cfg.Search.CacheTTL, s.logger)
		}
		if err := tools.RegisterWebSearchTool(registry, wsCfg, s.logger); err != nil {
			return nil, fmt.Errorf("register web search: %w", err)
		}
	} else {
		s.logger.Info("Brave API key not configured, web search disabled")
	}

	model := firstNonEmpty(s.cfg.LLM.ToolModel, s.cfg.LLM.AgentModel)
	if err := coach.RegisterAnalyzerTools(registry, toolProvider, model, s.logger); err != nil {
		return nil, fmt.Errorf("register analyzer tools: %w", err)
	}
	return registry, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 注册所有端点。辅导相关端点在未配置 LLM 时不注册。
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("GET /api/v1/sessions", s.transcriptHandler.HandleList)
	mux.HandleFunc("GET /api/v1/sessions/active", s.transcriptHandler.HandleActive)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.transcriptHandler.HandleGet)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", s.transcriptHandler.HandleMessages)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.transcriptHandler.HandleDelete)

	if s.chatHandler != nil {
		mux.Handle("GET "+api.ChatPath, s.chatHandler)
		mux.HandleFunc("POST /api/v1/profile/cv", s.profileHandler.HandleUploadCV)
		mux.HandleFunc("GET /api/v1/agents", s.agentHandler.HandleListAgents)
		mux.HandleFunc("GET /api/v1/agents/{id}", s.agentHandler.HandleGetAgent)
		s.logger.Info("Coaching routes registered", zap.String("ws", api.ChatPath))
	}
	return mux
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(bgCtx context.Context) error {
	sc := s.cfg.Server

	var checks []credentialCheck
	if len(sc.APIKeys) > 0 {
		checks = append(checks, APIKeyCheck(sc.APIKeys, sc.AllowQueryAPIKey))
	}
	if sc.JWT.Enabled() {
		checks = append(checks, JWTCheck(sc.JWT, s.logger))
	}
	if len(checks) == 0 {
		s.logger.Warn("No API keys or JWT configured, authentication disabled")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(sc.CORSAllowedOrigins),
		RateLimiter(bgCtx, float64(sc.RateLimitRPS), sc.RateLimitBurst, s.logger),
		Authenticate(skipAuthPaths, s.logger, checks...),
	)

	serverConfig := server.DefaultConfig()
	serverConfig.Addr = fmt.Sprintf(":%d", sc.HTTPPort)
	if sc.ReadHeaderTimeout > 0 {
		serverConfig.ReadHeaderTimeout = sc.ReadHeaderTimeout
	}
	serverConfig.ReadTimeout = sc.ReadTimeout
	serverConfig.WriteTimeout = sc.WriteTimeout
	if sc.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = sc.ShutdownTimeout
	}
	serverConfig.TLSCertFile = sc.TLSCertFile
	serverConfig.TLSKeyFile = sc.TLSKeyFile

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if s.chatHandler != nil {
		s.httpManager.OnShutdown(s.chatHandler.Shutdown)
	}
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 在独立端口暴露 /metrics，MetricsPort 为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	serverConfig := server.DefaultConfig()
	serverConfig.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	if s.cfg.Server.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = s.cfg.Server.ShutdownTimeout
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号或服务异常退出，然后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) error {
	var err error
	if s.httpManager != nil {
		err = s.httpManager.Wait(ctx)
	}
	s.Shutdown()
	return err
}

// Shutdown 优雅关闭：HTTP（连带 websocket 会话）→ Metrics → 后台任务 → 存储 → 遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.wg.Wait()
	s.logCosts()

	for _, mem := range s.memories {
		if err := mem.Close(); err != nil {
			s.logger.Warn("memory close error", zap.String("index", mem.Index()), zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database close error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.telemetry.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}

// logCosts 在退出时输出本进程的 LLM 成本，按 Agent 拆分.
func (s *Server) logCosts() {
	if s.costs == nil {
		return
	}
	total := s.costs.Summary()
	if total.RequestCount == 0 {
		return
	}
	for _, a := range s.costs.ByAgent() {
		s.logger.Info("llm cost by agent",
			zap.String("agent", a.Agent),
			zap.Int("requests", a.RequestCount),
			zap.Int("tokens", a.TotalTokens),
			zap.Float64("cost_usd", a.TotalCost))
	}
	s.logger.Info("llm cost total",
		zap.Int("requests", total.RequestCount),
		zap.Int("tokens", total.TotalTokens),
		zap.Float64("cost_usd", total.TotalCost))
}
