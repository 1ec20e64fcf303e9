package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/config"
	"github.com/shiv669/echo-core-go/internal/database"
	"github.com/shiv669/echo-core-go/internal/middleware"
	"github.com/shiv669/echo-core-go/internal/modules/gateway/gateway"
	"github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
	"github.com/shiv669/echo-core-go/internal/pkg/cluster"
	pkgcron "github.com/shiv669/echo-core-go/internal/pkg/cron"
	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App wires the HTTP surface to its backing services and owns their
// background goroutines.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	hub    *gateway.Hub
	logger *zap.Logger
	cancel context.CancelFunc // stops the hub and cron loops
	jobs   *pkgcron.Scheduler
}

// New builds the fully wired application. Order matters here: storage
// comes up first, then the gateway hub, then the routes that need both.
func New(cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := applyRuntimeSettings(cfg); err != nil {
		return nil, err
	}

	conn, err := database.Connect(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rdb, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	configureGinMode(cfg)

	hub := gateway.NewHub(rdb, logger)
	ctx, stop := context.WithCancel(context.Background())
	go hub.Run(ctx)

	app := &App{
		cfg:    cfg,
		router: newRouter(logger, cfg),
		db:     conn,
		hub:    hub,
		logger: logger,
		cancel: stop,
		jobs:   pkgcron.New(),
	}

	cfgSvc := configs.NewService(conn)
	app.registerRoutes(rdb, cfgSvc)

	if cluster.ShouldRunCron() {
		registerCronJobs(app.jobs, conn, cfgSvc, logger)
		go app.jobs.Start(ctx)
	}

	return app, nil
}

// configureGinMode keeps gin quiet outside development. In cluster mode only
// one process prints the route table.
func configureGinMode(cfg *config.AppConfig) {
	mode := gin.ReleaseMode
	if cfg.IsDev() {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	if mode == gin.DebugMode && !cluster.ShouldLogDevDiagnostics() {
		gin.DebugPrintRouteFunc = func(string, string, string, int) {}
		gin.DebugPrintFunc = func(string, ...interface{}) {}
	}
}

func newRouter(logger *zap.Logger, cfg *config.AppConfig) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), middleware.Logger(logger), cors.New(corsPolicy(cfg)))
	return r
}

// corsPolicy allows everything in development, mirroring the original
// allow_origins=["*"] default, and honors the configured origin patterns
// otherwise.
func corsPolicy(cfg *config.AppConfig) cors.Config {
	policy := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "x-echo-cache"},
		AllowCredentials: true,
		AllowOriginFunc:  func(string) bool { return true },
	}
	if cfg.IsDev() || len(cfg.AllowedOrigins) == 0 {
		return policy
	}

	patterns := cfg.AllowedOrigins
	policy.AllowOriginFunc = func(origin string) bool {
		host := extractOriginHost(origin)
		for _, pattern := range patterns {
			if matchOriginPattern(pattern, host) {
				return true
			}
		}
		return false
	}
	return policy
}

// Addr is the TCP listen address derived from the configured port.
func (a *App) Addr() string {
	return fmt.Sprintf(":%d", a.cfg.Port)
}

// Router exposes the gin engine as a plain http.Handler.
func (a *App) Router() http.Handler {
	return a.router
}

// Shutdown stops the background goroutines. The HTTP listener is owned by
// the caller and shuts down separately.
func (a *App) Shutdown() {
	a.cancel()
}

func (a *App) startTime() time.Time {
	return bootTime
}

var bootTime = time.Now()
