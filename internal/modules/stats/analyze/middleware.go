package analyze

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
)

// Paths that carry no analytical signal: infrastructure, sockets, log tails.
var skipPrefixes = []string{
	"/socket.io",
	"/health",
	"/gateway",
	"/ping",
	"/uptime",
	"/favicon.ico",
}

// Loopback callers are operators or probes, never visitors.
var loopbackIPs = map[string]bool{
	"127.0.0.1": true,
	"localhost": true,
	"::1":       true,
}

var botKeywords = []string{
	"bot", "crawler", "spider", "headless", "wget", "curl",
	"python-requests", "go-http", "java/", "scrapy",
}

// Middleware records each successful non-bot public GET as an analytics event.
// Recording can be switched off at runtime via the analyze_options section.
func Middleware(db *gorm.DB, cfgSvc *configs.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		// The verdict needs the final status code, so the handler chain
		// runs before anything is judged.
		c.Next()

		visit, ok := visitFor(c)
		if !ok || !recordingEnabled(cfgSvc) {
			return
		}
		go func() {
			_ = db.Create(visit).Error
		}()
	}
}

// visitFor decides whether the finished request counts as a page view and,
// when it does, builds the row to persist.
func visitFor(c *gin.Context) (*models.VisitModel, bool) {
	if c.Request.Method != "GET" {
		return nil, false
	}
	path := strings.TrimSpace(c.Request.URL.Path)
	if path == "" {
		path = "/"
	}
	if skipAnalyzePath(path) {
		return nil, false
	}
	if status := c.Writer.Status(); status < 200 || status >= 300 {
		return nil, false
	}
	rawUA := c.GetHeader("User-Agent")
	if isBotUA(rawUA) {
		return nil, false
	}
	ip := strings.TrimSpace(c.ClientIP())
	if ip == "" || loopbackIPs[ip] {
		return nil, false
	}
	return &models.VisitModel{
		IP:        ip,
		UA:        parseUA(rawUA),
		Path:      path,
		Referer:   c.GetHeader("Referer"),
		Timestamp: time.Now(),
	}, true
}

func recordingEnabled(cfgSvc *configs.Service) bool {
	if cfgSvc == nil {
		return true
	}
	cfg, err := cfgSvc.Get()
	if err != nil || cfg == nil {
		return false
	}
	return cfg.AnalyzeOptions.Enable
}

func skipAnalyzePath(path string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// isBotUA reports whether a User-Agent belongs to a crawler or a scripted
// client rather than a person.
func isBotUA(agent string) bool {
	folded := strings.ToLower(agent)
	for _, needle := range botKeywords {
		if strings.Contains(folded, needle) {
			return true
		}
	}
	return false
}

// uaRule matches when every one of its fragments appears in the lowercased
// User-Agent. Rules are tried in order; the first hit wins.
type uaRule struct {
	label     string
	fragments []string
}

var browserRules = []uaRule{
	{"Edge", []string{"edg/"}},
	{"Chrome", []string{"chrome/"}},
	{"Safari", []string{"safari/", "version/"}},
	{"Firefox", []string{"firefox/"}},
}

// iPhone UAs contain "like Mac OS X", so the iOS rules must precede macOS.
var osRules = []uaRule{
	{"iOS", []string{"iphone"}},
	{"iOS", []string{"ipad"}},
	{"iOS", []string{"ios"}},
	{"Android", []string{"android"}},
	{"Windows", []string{"windows"}},
	{"macOS", []string{"mac os"}},
	{"Linux", []string{"linux"}},
}

var deviceRules = []uaRule{
	{"bot", []string{"bot"}},
	{"bot", []string{"crawler"}},
	{"bot", []string{"spider"}},
	{"tablet", []string{"tablet"}},
	{"tablet", []string{"ipad"}},
	{"mobile", []string{"mobile"}},
}

func classify(lower string, rules []uaRule, fallback string) string {
	for _, rule := range rules {
		hit := true
		for _, fragment := range rule.fragments {
			if !strings.Contains(lower, fragment) {
				hit = false
				break
			}
		}
		if hit {
			return rule.label
		}
	}
	return fallback
}

// parseUA distils a User-Agent header into the browser, OS and device class
// stored with each visit.
func parseUA(agent string) map[string]interface{} {
	lower := strings.ToLower(agent)
	return map[string]interface{}{
		"ua":      agent,
		"raw":     agent,
		"type":    classify(lower, deviceRules, "desktop"),
		"browser": map[string]interface{}{"name": classify(lower, browserRules, "Unknown")},
		"os":      map[string]interface{}{"name": classify(lower, osRules, "Unknown")},
	}
}
