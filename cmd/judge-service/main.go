package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartsolution/internal/common/cache"
	"smartsolution/internal/common/db"
	commonmw "smartsolution/internal/common/http/middleware"
	"smartsolution/internal/common/mq"
	"smartsolution/internal/common/storage"
	"smartsolution/internal/judge/archive"
	"smartsolution/internal/judge/controller"
	"smartsolution/internal/judge/metrics"
	"smartsolution/internal/judge/repository"
	"smartsolution/internal/judge/resultcache"
	"smartsolution/internal/judge/sandbox"
	"smartsolution/internal/judge/sandbox/engine"
	"smartsolution/internal/judge/scorer"
	"smartsolution/internal/judge/scorer/firsttrack"
	"smartsolution/internal/judge/service"
	"smartsolution/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	sqlDB, err := db.Open(appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = sqlDB.Close()
	}()
	checks := map[string]controller.Checker{"database": sqlDB.Ping}

	// Redis is optional: without it results live in process memory and track metadata is not cached.
	var (
		cacheClient cache.Cache
		results     resultcache.Cache
	)
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		cacheClient = redisCache
		results = resultcache.NewRedisCache(redisCache)
		checks["redis"] = redisCache.Ping
	} else {
		memory := resultcache.NewMemoryCache()
		memory.Start()
		defer memory.Stop()
		results = memory
	}

	archives, err := buildArchiveSource(appCfg)
	if err != nil {
		logger.Error(context.Background(), "init archive source failed", zap.Error(err))
		return
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	judgeMetrics := metrics.NewMetrics(registry)

	executor, err := buildExecutor(appCfg.Sandbox)
	if err != nil {
		logger.Error(context.Background(), "init sandbox executor failed", zap.Error(err))
		return
	}
	runner, err := sandbox.NewRunner(executor, sandbox.RunnerConfig{
		OutputLimit: appCfg.Sandbox.OutputLimit,
		Observer:    judgeMetrics,
	})
	if err != nil {
		logger.Error(context.Background(), "init sandbox runner failed", zap.Error(err))
		return
	}

	scorers, err := buildScorers(appCfg, archive.NewExtractor(appCfg.Archive.Config), runner)
	if err != nil {
		logger.Error(context.Background(), "init scorers failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(context.Background(), "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()
	checks["kafka"] = mqClient.Ping

	judgeSvc, err := service.NewService(service.Config{
		Store:         repository.NewSubmissionStore(sqlDB, cacheClient, appCfg.Judge.TrackCacheTTL),
		Notifier:      repository.NewResultNotifier(mqClient, appCfg.Kafka.ResultTopic),
		Scorers:       scorers,
		Archives:      archives,
		Cache:         results,
		Metrics:       judgeMetrics,
		WorkRoot:      appCfg.Judge.WorkRoot,
		Workers:       appCfg.Judge.Workers,
		JudgeTimeout:  appCfg.Judge.Timeout,
		ResultTTL:     appCfg.Judge.ResultTTL,
		StoreTimeout:  appCfg.Judge.StoreTimeout,
		NotifyTimeout: appCfg.Judge.NotifyTimeout,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}

	err = mqClient.Subscribe(context.Background(), appCfg.Kafka.TaskTopic, judgeSvc.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup: appCfg.Kafka.ConsumerGroup,
		PrefetchCount: appCfg.Kafka.PrefetchCount,
		Concurrency:   appCfg.Kafka.Concurrency,
	})
	if err != nil {
		logger.Error(context.Background(), "subscribe kafka failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(context.Background(), "start kafka consumer failed", zap.Error(err))
		return
	}

	httpServer := buildHTTPServer(appCfg.Server, judgeSvc, checks, registry)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		_ = mqClient.Stop()
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("sandbox", appCfg.Sandbox.Backend),
			zap.Strings("tracks", scorers.Keys()),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	if err := mqClient.Stop(); err != nil {
		logger.Error(context.Background(), "kafka consumer stop failed", zap.Error(err))
	}
}

func buildArchiveSource(cfg *AppConfig) (archive.Source, error) {
	local := archive.NewLocalSource(cfg.Archive.Roots...)
	if cfg.MinIO.Endpoint == "" {
		return archive.NewMultiSource(local, nil), nil
	}
	objStorage, err := storage.NewMinIOStorage(cfg.MinIO)
	if err != nil {
		return nil, err
	}
	return archive.NewMultiSource(local, archive.NewObjectSource(objStorage, cfg.Archive.MaxDownloadBytes)), nil
}

func buildExecutor(cfg SandboxConfig) (sandbox.IsolatedExecutor, error) {
	if cfg.Backend == backendProcess {
		executor, err := engine.NewProcessExecutor(cfg.Process)
		if err != nil {
			return nil, err
		}
		return executor, nil
	}
	executor, err := engine.NewDockerExecutor(cfg.Docker)
	if err != nil {
		return nil, err
	}
	return executor, nil
}

func buildScorers(cfg *AppConfig, extractor *archive.Extractor, runner *sandbox.Runner) (*scorer.Registry, error) {
	registry := scorer.NewRegistry()
	for _, track := range cfg.Tracks {
		strategy, err := firsttrack.NewStrategy(track.Config, extractor, runner, nil)
		if err != nil {
			return nil, fmt.Errorf("track %q: %w", track.Key, err)
		}
		if err := registry.Register(track.Key, strategy); err != nil {
			return nil, fmt.Errorf("track %q: %w", track.Key, err)
		}
	}
	return registry, nil
}

func buildHTTPServer(cfg ServerConfig, results controller.ResultReader, checks map[string]controller.Checker, registry *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", controller.NewHealthController(checks).Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	api := router.Group("/api/v1/judge")
	judgeController := controller.NewJudgeController(results)
	api.GET("/submissions/:id", judgeController.GetStatus)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
