package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	APICachePrefix = "echo-api-cache:"

	defaultHTTPCacheTTL     = 15 * time.Second
	defaultHTTPCacheMaxBody = 1 << 20 // 1 MiB

	swrSeconds = 60
)

// Query params that force a cache miss when present with a value.
var cacheBypassParams = [...]string{"ts", "timestamp", "_t", "t"}

// Cache-Control directives that mark a response private or uncacheable.
var uncacheableDirectives = []string{"no-cache", "no-store", "private"}

type HTTPCacheOptions struct {
	TTL          time.Duration
	Disable      bool
	SkipPaths    []string
	MaxBodyBytes int

	EnableCDNHeader        bool // mirror the TTL into CDN cache-control headers
	EnableForceCacheHeader bool // also set a browser max-age directive
}

// cacheEnvelope is what gets stored in Redis. encoding/json carries the body
// as base64 transparently.
type cacheEnvelope struct {
	StatusCode int    `json:"status"`
	MIME       string `json:"content_type,omitempty"`
	Body       []byte `json:"body"`
}

// captureWriter tees response bytes into a bounded buffer on the way out.
// Once the buffer limit is crossed the response is marked uncacheable and
// capture stops.
type captureWriter struct {
	gin.ResponseWriter
	buf      []byte
	capLimit int
	spilled  bool
}

func (cw *captureWriter) Write(p []byte) (int, error) {
	cw.stash(p)
	return cw.ResponseWriter.Write(p)
}

func (cw *captureWriter) WriteString(s string) (int, error) {
	cw.stash([]byte(s))
	return cw.ResponseWriter.WriteString(s)
}

func (cw *captureWriter) stash(p []byte) {
	if len(p) == 0 || cw.spilled || cw.capLimit <= 0 {
		return
	}
	room := cw.capLimit - len(cw.buf)
	if room <= 0 {
		cw.spilled = true
		return
	}
	if len(p) > room {
		p = p[:room]
		cw.spilled = true
	}
	cw.buf = append(cw.buf, p...)
}

func normalizeHTTPCacheOptions(in HTTPCacheOptions) HTTPCacheOptions {
	out := in
	if out.TTL <= 0 {
		out.TTL = defaultHTTPCacheTTL
	}
	if out.MaxBodyBytes <= 0 {
		out.MaxBodyBytes = defaultHTTPCacheMaxBody
	}
	return out
}

func bypassHTTPCache(c *gin.Context, rdb *redis.Client, cfg HTTPCacheOptions) bool {
	if cfg.Disable || rdb == nil || c.Request.Method != http.MethodGet {
		return true
	}
	return shouldSkipCachePath(c.Request.URL.Path, cfg.SkipPaths) || hasCacheBuster(c)
}

// HTTPCache caches GET responses in Redis for a short TTL. Writes purge the
// whole cache namespace via PurgeHTTPCache.
func HTTPCache(rdb *redis.Client, o HTTPCacheOptions) gin.HandlerFunc {
	cfg := normalizeHTTPCacheOptions(o)
	ttlSec := int(cfg.TTL / time.Second)

	return func(c *gin.Context) {
		if bypassHTTPCache(c, rdb, cfg) {
			c.Next()
			return
		}

		key := APICachePrefix + c.Request.URL.RequestURI()
		if hit, ok := readCachedResponse(c.Request.Context(), rdb, key); ok {
			setCacheHeader(c.Writer, hit.StatusCode, ttlSec, cfg)
			c.Data(hit.StatusCode, hit.MIME, hit.Body)
			c.Abort()
			return
		}

		sink := &captureWriter{ResponseWriter: c.Writer, capLimit: cfg.MaxBodyBytes}
		c.Writer = sink
		c.Next()

		status := sink.Status()
		if status <= 0 {
			status = http.StatusOK
		}
		if !isCacheableResponse(status, sink.Header()) {
			return
		}
		setCacheHeader(c.Writer, status, ttlSec, cfg)

		if sink.spilled || len(sink.buf) == 0 {
			return
		}
		storeCachedResponse(c.Request.Context(), rdb, key, cacheEnvelope{
			StatusCode: status,
			MIME:       sink.Header().Get("Content-Type"),
			Body:       sink.buf,
		}, cfg.TTL)
	}
}

func storeCachedResponse(ctx context.Context, rdb *redis.Client, key string, envelope cacheEnvelope, ttl time.Duration) {
	blob, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	_ = rdb.Set(ctx, key, blob, ttl).Err()
}

func readCachedResponse(ctx context.Context, rdb *redis.Client, cacheKey string) (cacheEnvelope, bool) {
	blob, err := rdb.Get(ctx, cacheKey).Bytes()
	if err != nil || len(blob) == 0 {
		return cacheEnvelope{}, false
	}
	var envelope cacheEnvelope
	if json.Unmarshal(blob, &envelope) != nil {
		return cacheEnvelope{}, false
	}

	if envelope.StatusCode <= 0 {
		envelope.StatusCode = http.StatusOK
	}
	if envelope.MIME == "" {
		envelope.MIME = "application/json; charset=utf-8"
	}
	return envelope, true
}

// PurgeHTTPCache drops every cached response. Returns how many keys went away.
func PurgeHTTPCache(ctx context.Context, rdb *redis.Client) (int64, error) {
	if rdb == nil {
		return 0, nil
	}
	match := APICachePrefix + "*"
	var deleted int64
	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, delErr := rdb.Del(ctx, keys...).Result()
			if delErr != nil {
				return deleted, delErr
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// shouldSkipCachePath matches a path against skip patterns. A trailing star
// makes a pattern a prefix match; anything else must match exactly.
func shouldSkipCachePath(path string, skips []string) bool {
	for _, raw := range skips {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		if prefix, wildcard := strings.CutSuffix(pattern, "*"); wildcard {
			if strings.HasPrefix(path, prefix) {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}

func hasCacheBuster(c *gin.Context) bool {
	values := c.Request.URL.Query()
	for _, param := range cacheBypassParams {
		if strings.TrimSpace(values.Get(param)) != "" {
			return true
		}
	}
	return false
}

func isCacheableResponse(status int, hdr http.Header) bool {
	control := strings.ToLower(hdr.Get("Cache-Control"))
	for _, directive := range uncacheableDirectives {
		if strings.Contains(control, directive) {
			return false
		}
	}
	return status == http.StatusOK
}

func setCacheHeader(w gin.ResponseWriter, status, ttlSec int, o HTTPCacheOptions) {
	if status != http.StatusOK {
		return
	}
	if ttlSec <= 0 {
		ttlSec = int(defaultHTTPCacheTTL / time.Second)
	}
	maxAge := "max-age=" + strconv.Itoa(ttlSec)
	revalidate := "stale-while-revalidate=" + strconv.Itoa(swrSeconds)
	header := w.Header()

	header.Set("x-echo-cache", "hit")
	if o.EnableCDNHeader {
		cdn := maxAge + ", " + revalidate
		header.Set("cdn-cache-control", cdn)
		header.Set("Cloudflare-CDN-Cache-Control", cdn)
	}

	// An upstream handler that set its own policy keeps it.
	if header.Get("cache-control") != "" {
		return
	}
	directives := make([]string, 0, 2)
	if o.EnableForceCacheHeader {
		directives = append(directives, maxAge)
	}
	if o.EnableCDNHeader {
		directives = append(directives, "s-maxage="+strconv.Itoa(ttlSec)+", "+revalidate)
	}
	if len(directives) > 0 {
		header.Set("cache-control", strings.Join(directives, ", "))
	}
}
