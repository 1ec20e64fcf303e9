package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	headerIdempotence = "x-idempotence"
	dedupeWindow      = 60 * time.Second
)

// Ingest endpoints are exempt from automatic fingerprinting; submitting the
// same source twice legitimately creates two nodes.
var autoFingerprintExempt = map[string]bool{
	"/add_source":     true,
	"/sources/import": true,
}

// Idempotence deduplicates non-GET requests within a 60 second window.
// Clients opt in explicitly with the x-idempotence header; other requests
// are fingerprinted from method, URL, body, UA and IP.
func Idempotence(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		key, ok := idempotenceKey(c)
		if !ok {
			c.Next()
			return
		}
		runIdempotent(c, rdb, "echo:idempotence:"+key)
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// idempotenceKey yields the dedup key for this request, or false when the
// request should pass through unchecked.
func idempotenceKey(c *gin.Context) (string, bool) {
	if key := c.GetHeader(headerIdempotence); key != "" {
		return key, true
	}
	if shouldSkipAutoFingerprint(c.Request.URL.Path) {
		return "", false
	}
	fingerprint, err := fingerprintRequest(c)
	if err != nil || fingerprint == "" {
		return "", false
	}
	return fingerprint, true
}

func runIdempotent(c *gin.Context, rdb *redis.Client, redisKey string) {
	ctx := c.Request.Context()

	val, err := rdb.Get(ctx, redisKey).Result()
	switch {
	case err == nil:
		rejectDuplicate(c, val)
		return
	case !errors.Is(err, redis.Nil):
		// Redis being down must not block writes.
		c.Next()
		return
	}

	if rdb.Set(ctx, redisKey, "0", dedupeWindow).Err() != nil {
		c.Next()
		return
	}

	c.Next()

	if status := c.Writer.Status(); status >= 200 && status < 300 {
		rdb.Set(ctx, redisKey, "1", redis.KeepTTL)
	} else {
		rdb.Del(ctx, redisKey)
	}
}

func rejectDuplicate(c *gin.Context, state string) {
	msg := "相同请求成功后在 60 秒内只能发送一次"
	if state == "0" {
		msg = "相同请求正在处理中..."
	}
	c.AbortWithStatusJSON(http.StatusConflict, gin.H{
		"ok":      0,
		"code":    http.StatusConflict,
		"message": msg,
	})
}

func shouldSkipAutoFingerprint(path string) bool {
	p := strings.TrimRight(strings.TrimSpace(strings.ToLower(path)), "/")
	return autoFingerprintExempt[p]
}

// fingerprintRequest hashes the request into a dedup key. The body is
// restored afterwards so downstream binding still works.
func fingerprintRequest(c *gin.Context) (string, error) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	agent := c.Request.UserAgent()
	ip := c.ClientIP()
	if len(raw) == 0 && agent == "" && ip == "" {
		return "", nil
	}

	parts := []string{c.Request.Method, c.Request.URL.String(), string(raw), agent, ip}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nil
}
