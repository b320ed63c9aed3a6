package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/crowdflow/api/handlers"
	"github.com/BaSui01/crowdflow/config"
	"github.com/BaSui01/crowdflow/crowd"
	"github.com/BaSui01/crowdflow/crowd/builtin"
	"github.com/BaSui01/crowdflow/internal/cache"
	"github.com/BaSui01/crowdflow/internal/database"
	"github.com/BaSui01/crowdflow/internal/metrics"
	"github.com/BaSui01/crowdflow/internal/migration"
	"github.com/BaSui01/crowdflow/internal/server"
	"github.com/BaSui01/crowdflow/internal/telemetry"
	"github.com/BaSui01/crowdflow/internal/tlsutil"
	"github.com/BaSui01/crowdflow/template"
)

const (
	apiPrefix         = "/api/v1"
	poolStatsInterval = 15 * time.Second
	cacheHealthCheck  = 30 * time.Second
	cacheMaxRetries   = 3
	metricsNamespace  = "crowdflow"
	apiServerName     = "api"
	metricsServerName = "metrics"
	bundleCacheType   = "template_bundle"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装存储、众包注册表、模板解析与 HTTP 服务
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	collector *metrics.Collector
	pool      *database.PoolManager
	cache     *cache.Manager

	registry  *crowd.Registry
	service   *crowd.Service
	templates *template.Store

	servers   *server.Manager
	stopStats context.CancelFunc
	wg        sync.WaitGroup
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Init 按顺序初始化全部组件；众包注册与 schema 检查失败时返回错误
func (s *Server) Init(ctx context.Context) error {
	providers, err := telemetry.Init(s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		s.telemetry = providers
	}

	s.collector = metrics.NewCollector(metricsNamespace, s.logger)

	if err := s.initStorage(ctx); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	if err := s.initCrowds(); err != nil {
		return fmt.Errorf("failed to register crowds: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}

	s.service = crowd.NewService(s.registry, s.pool.DB(),
		crowd.WithTransactor(s.pool.Transactor(s.cfg.Crowd.TxRetries)),
		crowd.WithRecorder(s.collector),
		crowd.WithNotifier(crowd.LogNotifier{Logger: s.logger}),
		crowd.WithLogger(s.logger),
	)

	if s.cfg.Templates.SeedFile != "" {
		if err := s.applySeed(ctx, s.cfg.Templates.SeedFile); err != nil {
			return fmt.Errorf("failed to apply template seed: %w", err)
		}
	}

	statsCtx, cancel := context.WithCancel(context.Background())
	s.stopStats = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pool.ReportStats(statsCtx, s.cfg.Database.Driver, poolStatsInterval, s.collector)
	}()
	if s.cache != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.cache.ReportStats(statsCtx, bundleCacheType, poolStatsInterval, s.collector)
		}()
	}

	return s.initServers()
}

// initStorage 打开数据库连接池、可选的 Redis 缓存与模板存储
func (s *Server) initStorage(_ context.Context) error {
	dbCfg := s.cfg.Database
	db, err := database.Open(dbCfg.Driver, dbCfg.DSN())
	if err != nil {
		return err
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = dbCfg.MaxOpenConns
	poolCfg.MaxIdleConns = dbCfg.MaxIdleConns
	poolCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	s.pool, err = database.NewPoolManager(db, poolCfg, s.logger)
	if err != nil {
		return err
	}
	s.logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	if s.collector != nil {
		if err := db.Use(&database.QueryMetrics{Database: dbCfg.Driver, Recorder: s.collector}); err != nil {
			return fmt.Errorf("failed to register query metrics: %w", err)
		}
	}

	opts := []template.StoreOption{
		template.WithCycleCheck(s.cfg.Templates.RejectCycles),
		template.WithLogger(s.logger),
	}
	if s.collector != nil {
		opts = append(opts, template.WithRecorder(s.collector))
	}

	if s.cfg.Redis.Enabled {
		cacheCfg := cache.Config{
			Addr:                s.cfg.Redis.Addr,
			Password:            s.cfg.Redis.Password,
			DB:                  s.cfg.Redis.DB,
			KeyPrefix:           s.cfg.Redis.KeyPrefix,
			DefaultTTL:          s.cfg.Templates.BundleCacheTTL,
			MaxRetries:          cacheMaxRetries,
			PoolSize:            s.cfg.Redis.PoolSize,
			HealthCheckInterval: cacheHealthCheck,
		}
		if s.cfg.Redis.TLS {
			cacheCfg.TLSConfig = tlsutil.DefaultTLSConfig()
		}
		mgr, err := cache.NewManager(cacheCfg, s.logger)
		if err != nil {
			// bundle 缓存可选，Redis 不可用时直接查库
			s.logger.Warn("Redis not available, bundle cache disabled", zap.Error(err))
		} else {
			s.cache = mgr
			opts = append(opts, template.WithCache(mgr, s.cfg.Templates.BundleCacheTTL))
		}
	}

	s.templates = template.NewStore(s.pool.DB(), opts...)
	return nil
}

// initCrowds 注册启用的内置众包类型并冻结注册表
func (s *Server) initCrowds() error {
	s.registry = crowd.NewRegistry(s.logger)
	if err := builtin.RegisterAll(s.registry, s.cfg.Crowd.EnabledCrowds...); err != nil {
		return err
	}
	s.registry.Seal()
	return nil
}

// ensureSchema auto_migrate 打开时由 GORM 建表，否则要求 SQL 迁移已是最新
func (s *Server) ensureSchema(ctx context.Context) error {
	if s.cfg.Crowd.AutoMigrate {
		if err := s.templates.AutoMigrate(ctx); err != nil {
			return err
		}
		if s.registry == nil {
			return nil
		}
		for _, spec := range s.registry.Specifications() {
			if err := spec.AutoMigrate(ctx, s.pool.DB()); err != nil {
				return fmt.Errorf("crowd %s: %w", spec.Name(), err)
			}
		}
		return nil
	}

	m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return migration.EnsureCurrent(ctx, m)
}

func (s *Server) applySeed(ctx context.Context, path string) error {
	seed, err := template.LoadSeed(path)
	if err != nil {
		return err
	}
	result, err := s.templates.ApplySeed(ctx, seed)
	if err != nil {
		return err
	}
	s.logger.Info("Template seed applied",
		zap.String("file", path),
		zap.Int("resources_created", result.ResourcesCreated),
		zap.Int("resources_updated", result.ResourcesUpdated),
		zap.Int("task_types_created", result.TaskTypesCreated),
	)
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) initServers() error {
	srvCfg := server.Config{
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.servers = server.NewManager(srvCfg, s.logger)

	tlsCfg, err := tlsutil.ServerConfig(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	if err != nil {
		return err
	}
	apiAddr := fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	if tlsCfg != nil {
		err = s.servers.HandleTLS(apiServerName, apiAddr, s.Handler(), tlsCfg)
	} else {
		err = s.servers.Handle(apiServerName, apiAddr, s.Handler())
	}
	if err != nil {
		return err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	return s.servers.Handle(metricsServerName, fmt.Sprintf(":%d", s.cfg.Server.MetricsPort), metricsMux)
}

// Handler 构建 API 路由与中间件链
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	health.RegisterCheck(handlers.NewDatabaseHealthCheck(s.pool.Ping))
	if s.cache != nil {
		health.RegisterCheck(handlers.NewRedisHealthCheck(s.cache.Ping))
	}
	health.Register(mux)

	handlers.NewCrowdHandler(s.registry, s.service, s.logger).Register(mux, apiPrefix)
	handlers.NewTemplateHandler(s.templates, s.logger).Register(mux, apiPrefix)

	// Metrics 放在最内层以便读取 ServeMux 写入的路由模式
	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		OTelTracing(),
		RequestLogger(s.logger),
		Metrics(s.collector),
	)
}

// Run 启动 HTTP 服务并阻塞到 ctx 结束或服务异常退出
func (s *Server) Run(ctx context.Context) error {
	if err := s.servers.Start(); err != nil {
		return err
	}
	s.logger.Info("All servers started",
		zap.String("api_addr", s.servers.Addr(apiServerName)),
		zap.String("metrics_addr", s.servers.Addr(metricsServerName)),
		zap.Strings("crowds", s.registry.Names()),
	)
	return s.servers.Wait(ctx)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Close 释放全部资源，可重复调用
func (s *Server) Close(ctx context.Context) error {
	var errs []error

	if s.servers != nil {
		if err := s.servers.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.stopStats != nil {
		s.stopStats()
	}
	s.wg.Wait()

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
