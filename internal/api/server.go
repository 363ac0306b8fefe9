package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fundseek/internal/domain/catalog"
	applog "fundseek/internal/platform/log"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // 对话流式响应需要较长写超时
	}
}

// Server HTTP 服务器
type Server struct {
	config   *ServerConfig
	finder   *catalog.Finder
	resolver *catalog.Resolver
	store    catalog.Store
	chat     *ChatHandler
	embed    *EmbedHandler
	httpSrv  *http.Server
}

// NewServer 创建服务器
func NewServer(config *ServerConfig, finder *catalog.Finder, resolver *catalog.Resolver, store catalog.Store) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:   config,
		finder:   finder,
		resolver: resolver,
		store:    store,
	}
}

// SetChat 设置对话处理器（可选，仅在 LLM 配置时启用）
func (s *Server) SetChat(chat *ChatHandler) {
	s.chat = chat
}

// SetEmbed 设置向量化批处理端点（可选，仅在 Gemini 配置时启用）
func (s *Server) SetEmbed(embed *EmbedHandler) {
	s.embed = embed
}

// Start 启动服务器
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 Funding catalog API server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler 返回 HTTP Handler（用于测试）
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	catalogHandler := NewCatalogHandler(s.finder, s.resolver, s.store)

	r.Route("/api/v1", func(r chi.Router) {
		catalogHandler.RegisterRoutes(r)
		if s.chat != nil {
			s.chat.RegisterRoutes(r)
			applog.Info("💬 Chat API enabled")
		}
		if s.embed != nil {
			s.embed.RegisterRoutes(r)
			applog.Info("🧮 Embedding worker API enabled")
		}
	})

	return r
}

// corsMiddleware CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, use-locale")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
