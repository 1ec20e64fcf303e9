package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/middleware"
	"github.com/shiv669/echo-core-go/internal/modules/gateway/gateway"
	"github.com/shiv669/echo-core-go/internal/modules/knowledge/graph"
	"github.com/shiv669/echo-core-go/internal/modules/knowledge/source"
	"github.com/shiv669/echo-core-go/internal/modules/processing/ai"
	"github.com/shiv669/echo-core-go/internal/modules/processing/render"
	"github.com/shiv669/echo-core-go/internal/modules/stats/analyze"
	"github.com/shiv669/echo-core-go/internal/modules/storage/archive"
	appconfigs "github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
	"github.com/shiv669/echo-core-go/internal/modules/system/core/health"
	"github.com/shiv669/echo-core-go/internal/modules/system/core/option"
	"github.com/shiv669/echo-core-go/internal/pkg/bark"
	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
)

func (a *App) registerRoutes(rc *pkgredis.Client, configSvc *appconfigs.Service) {
	router := a.router
	db := a.db
	raw := rc.Raw()

	router.NoRoute(func(c *gin.Context) { response.NotFound(c) })
	router.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })

	info := gin.H{
		"name":     "echo-core-go",
		"author":   "shiv669",
		"version":  "1.0.0",
		"homepage": "https://github.com/shiv669/echo-core-go",
		"issues":   "https://github.com/shiv669/echo-core-go/issues",
	}

	// Bark pushes rate-limit alarms to the operator's phone.
	alarms := bark.New(func() (string, string, string) {
		cfg, err := configSvc.Get()
		if err != nil {
			return "", "", ""
		}
		opt := cfg.BarkOptions
		return opt.Key, opt.ServerURL, cfg.SEO.Title
	})

	// Analytics, rate limiting and idempotence run on every route. The HTTP
	// cache sits last so it only ever captures responses that survived the
	// guards in front of it.
	cacheOpts := middleware.HTTPCacheOptions{
		TTL:             15 * time.Second,
		Disable:         a.cfg.IsDev(),
		SkipPaths:       httpCacheSkipPaths(),
		EnableCDNHeader: true,
	}
	router.Use(analyze.Middleware(db, configSvc))
	router.Use(middleware.RateLimit(raw, alarms))
	router.Use(middleware.Idempotence(raw))
	router.Use(middleware.HTTPCache(raw, cacheOpts))

	tasks := taskqueue.NewService(rc)

	// Routes hang directly off the router root. Clients depend on the flat
	// paths, so there is no versioned prefix.
	base := router.Group("")

	// Infrastructure
	health.RegisterRoutes(base, db, a.jobs)

	// App info endpoints
	base.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, info) })
	base.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, info) })
	base.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	base.GET("/uptime", func(c *gin.Context) {
		up := time.Since(a.startTime())
		c.JSON(http.StatusOK, gin.H{"timestamp": up.Milliseconds(), "humanize": prettyDuration(up)})
	})

	purgeCache := func(c *gin.Context) {
		configSvc.Invalidate()
		deleted, err := middleware.PurgeHTTPCache(c.Request.Context(), raw)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted, "ok": true})
	}
	base.GET("/clean_cache", purgeCache)
	base.GET("/clean_catch", purgeCache) // legacy typo compatibility
	base.GET("/clean_redis", func(c *gin.Context) {
		if err := raw.FlushDB(c.Request.Context()).Err(); err != nil {
			response.InternalError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// Knowledge graph reads
	graphSvc := graph.NewService(db)
	graph.NewHandler(graphSvc).RegisterRoutes(base)

	// Ingestion
	aiSvc := ai.NewService(configSvc, tasks)
	srcSvc := source.NewService(db, aiSvc, configSvc, tasks, a.hub, alarms, rc, a.logger)
	source.NewHandler(srcSvc).RegisterRoutes(base)

	// Analysis dry-run, model listing and task admin
	aiHandler := ai.NewHandler(aiSvc)
	aiHandler.RegisterTaskRetrier(source.TaskTypeIngest, srcSvc.RetryIngest)
	aiHandler.RegisterRoutes(base)

	// Markdown rendering of node content
	render.NewHandler(graphSvc).RegisterRoutes(base)

	// Runtime config + raw KV
	appconfigs.NewHandler(configSvc).RegisterRoutes(base)
	option.NewHandler(db).RegisterRoutes(base)

	// Archives
	archive.NewHandler(db, configSvc, rc, tasks, archive.WithLogger(a.logger)).RegisterRoutes(base)

	// Analytics admin
	analyze.NewHandler(analyze.NewService(db), db).RegisterRoutes(base)

	// WebSocket gateway, including /gateway/stats
	gateway.RegisterRoutes(base, a.hub)
}

// httpCacheSkipPaths lists routes the response cache must never touch:
// websocket upgrades, SSE streams, health probes and the mutating archive
// surface.
func httpCacheSkipPaths() []string {
	return []string{
		"/socket.io/*",
		"/health*",
		"/archive*",
		"/ai/analyze/stream",
		"/uptime",
		"/clean_cache",
		"/clean_catch",
		"/clean_redis",
		"/gateway/stats",
	}
}
