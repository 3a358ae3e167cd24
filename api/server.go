package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/codesync-go/api/controllers"
	"github.com/moyoez/codesync-go/api/middlewares"
	"github.com/moyoez/codesync-go/auth"
	"github.com/moyoez/codesync-go/broker"
	"github.com/moyoez/codesync-go/gateway"
	"github.com/moyoez/codesync-go/metrics"
	"github.com/moyoez/codesync-go/presence"
	"github.com/moyoez/codesync-go/session"
	"github.com/moyoez/codesync-go/tool"
	"github.com/moyoez/codesync-go/types"
)

// Deps are the components the HTTP surface is built on.
type Deps struct {
	Registry *session.Registry
	Broker   *broker.Broker
	Presence *presence.Tracker
	Auth     *auth.Auth
	Gateway  *gateway.Gateway
}

// Server serves the REST control plane and the WebSocket endpoint.
type Server struct {
	cfg    types.AppConfig
	deps   Deps
	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex
}

func NewServer(cfg types.AppConfig, deps Deps) *Server {
	return &Server{cfg: cfg, deps: deps}
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.Use(middlewares.AllowAllCORS())
	if s.cfg.Metrics.Enabled {
		engine.Use(middlewares.Metrics())
	}

	sessionCtrl := controllers.NewSessionController(s.deps.Registry, s.deps.Presence, s.cfg.PublicURL)
	treeCtrl := controllers.NewTreeController(s.deps.Registry, s.deps.Broker, s.cfg.Session)
	userCtrl := controllers.NewUserController(s.deps.Auth)

	engine.GET("/ping", controllers.HandlePing)

	// auth.required decides whether these demand a token
	optional := middlewares.Authenticate(s.deps.Auth, false)
	sessions := engine.Group("/api/sessions", optional)
	{
		sessions.POST("", sessionCtrl.HandleCreate)
		sessions.GET("", sessionCtrl.HandleList)
		sessions.GET("/:id", sessionCtrl.HandleGet)
		sessions.DELETE("/:id", sessionCtrl.HandleDelete)
		sessions.GET("/:id/participants", sessionCtrl.HandleParticipants)
		sessions.GET("/:id/chat", sessionCtrl.HandleChat)
		sessions.GET("/:id/qrcode", sessionCtrl.HandleQRCode)
	}
	trees := engine.Group("/api/tree/:id", optional)
	{
		trees.GET("", treeCtrl.HandleGet)
		trees.POST("", treeCtrl.HandleCreate)
		trees.DELETE("", treeCtrl.HandleDelete)
		trees.PUT("/content", treeCtrl.HandleWriteContent)
		trees.GET("/file", treeCtrl.HandleReadFile)
		trees.POST("/rename", treeCtrl.HandleRename)
		trees.POST("/move", treeCtrl.HandleMove)
		trees.POST("/duplicate", treeCtrl.HandleDuplicate)
		trees.GET("/search", treeCtrl.HandleSearch)
		trees.GET("/download", treeCtrl.HandleDownload)
		trees.POST("/upload", treeCtrl.HandleUpload)
	}
	users := engine.Group("/api/users")
	{
		users.POST("/register", userCtrl.HandleRegister)
		users.POST("/login", userCtrl.HandleLogin)
		users.GET("/ping", controllers.HandlePing)
		users.POST("/logout", middlewares.Authenticate(s.deps.Auth, true), userCtrl.HandleLogout)
		users.GET("/me", middlewares.Authenticate(s.deps.Auth, true), userCtrl.HandleMe)
	}

	// plain STOMP over websocket, or SockJS discovery plus its websocket transport
	engine.GET("/ws-connect", s.deps.Gateway.Handle)
	engine.GET("/ws-connect/websocket", s.deps.Gateway.Handle)
	engine.GET("/ws-connect/info", s.deps.Gateway.Info)
	engine.GET("/ws-connect/:server/:session/websocket", s.deps.Gateway.HandleSockJS)

	if s.cfg.Metrics.Enabled {
		if s.cfg.Metrics.LocalOnly {
			engine.GET("/metrics", middlewares.OnlyAllowLocal, gin.WrapH(metrics.Handler()))
		} else {
			engine.GET("/metrics", gin.WrapH(metrics.Handler()))
		}
	}
	return engine
}

// Handler builds the routes without listening.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = s.setupRoutes()
	}
	return s.engine
}

// Start listens until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	handler := s.Handler()
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting API server on http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Hijacked WebSocket connections are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
