package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器管理器（API 与 metrics 两个监听）
// =============================================================================

// Manager 管理一组 http.Server 的启动与优雅关闭
type Manager struct {
	servers []*namedServer
	errCh   chan error
	config  Config
	logger  *zap.Logger
	mu      sync.RWMutex
	started bool
	closed  bool
}

type namedServer struct {
	name     string
	addr     string
	server   *http.Server
	listener net.Listener
}

// Config 服务器公共配置
type Config struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// NewManager 创建服务器管理器
func NewManager(config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		errCh:  make(chan error, 4),
		config: config,
		logger: logger.With(zap.String("component", "http_server")),
	}
}

// Handle 注册一个监听；必须在 Start 之前调用
func (m *Manager) Handle(name, addr string, handler http.Handler) error {
	return m.add(name, addr, handler, nil)
}

// HandleTLS 注册一个 HTTPS 监听，证书取自 tlsConfig.Certificates
func (m *Manager) HandleTLS(name, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	if tlsConfig == nil || len(tlsConfig.Certificates) == 0 {
		return fmt.Errorf("server %q: tls config without certificates", name)
	}
	return m.add(name, addr, handler, tlsConfig)
}

func (m *Manager) add(name, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return fmt.Errorf("cannot add server %q after start", name)
	}
	for _, s := range m.servers {
		if s.name == name {
			return fmt.Errorf("server %q already registered", name)
		}
	}
	m.servers = append(m.servers, &namedServer{
		name: name,
		addr: addr,
		server: &http.Server{
			Addr:           addr,
			Handler:        handler,
			ReadTimeout:    m.config.ReadTimeout,
			WriteTimeout:   m.config.WriteTimeout,
			IdleTimeout:    m.config.IdleTimeout,
			MaxHeaderBytes: m.config.MaxHeaderBytes,
			TLSConfig:      tlsConfig,
		},
	})
	return nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 监听全部地址并在后台服务（非阻塞）；任一监听失败时全部释放
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("server is closed")
	}
	if m.started {
		return fmt.Errorf("server already started")
	}
	if len(m.servers) == 0 {
		return fmt.Errorf("no servers registered")
	}

	for i, s := range m.servers {
		ln, err := net.Listen("tcp", s.addr)
		if err != nil {
			for _, opened := range m.servers[:i] {
				_ = opened.listener.Close()
				opened.listener = nil
			}
			return fmt.Errorf("failed to listen on %s for %s: %w", s.addr, s.name, err)
		}
		s.listener = ln
	}

	m.started = true
	for _, s := range m.servers {
		m.logger.Info("starting HTTP server", zap.String("name", s.name), zap.String("addr", s.listener.Addr().String()))
		go m.serve(s)
	}
	return nil
}

func (m *Manager) serve(s *namedServer) {
	var err error
	if s.server.TLSConfig != nil {
		err = s.server.ServeTLS(s.listener, "", "")
	} else {
		err = s.server.Serve(s.listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("HTTP server failed", zap.String("name", s.name), zap.Error(err))
		select {
		case m.errCh <- fmt.Errorf("%s server: %w", s.name, err):
		default:
		}
	}
}

// Shutdown 在 ShutdownTimeout 内优雅关闭全部服务器
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if !m.started {
		return nil
	}

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	for _, s := range m.servers {
		if err := s.server.Shutdown(ctx); err != nil {
			m.logger.Error("HTTP server shutdown failed", zap.String("name", s.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	m.logger.Info("HTTP servers stopped")
	return errors.Join(errs...)
}

// Wait 阻塞直到 ctx 结束或某个服务器异常退出，然后优雅关闭；
// 返回服务器异常（正常关闭返回 nil）
func (m *Manager) Wait(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
		m.logger.Info("shutdown requested")
	case serveErr = <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(serveErr))
	}
	if err := m.Shutdown(context.Background()); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// Errors 异步服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Addr 返回指定服务器的实际监听地址；未启动时返回配置地址
func (m *Manager) Addr(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.servers {
		if s.name != name {
			continue
		}
		if s.listener != nil {
			return s.listener.Addr().String()
		}
		return s.addr
	}
	return ""
}

// IsRunning 已启动且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started && !m.closed
}
