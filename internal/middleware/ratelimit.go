package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shiv669/echo-core-go/internal/pkg/bark"
)

const (
	maxPerWindow = 50
	limitWindow  = time.Second
)

// RateLimit enforces a fixed-window limit of 50 requests per second per
// client IP. The counter lives in Redis so the limit holds across workers.
func RateLimit(rdb *redis.Client, barkSvc *bark.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		count, counted := windowCount(c, rdb, ip)
		if !counted || count <= maxPerWindow {
			c.Next()
			return
		}

		if barkSvc != nil {
			go barkSvc.ThrottlePush(ip, c.Request.URL.Path)
		}
		rejectTooFast(c)
	}
}

// windowCount bumps the per-second counter for the ip. The first hit in a
// window arms the key expiry. A Redis failure reports counted=false so the
// request passes through unlimited.
func windowCount(c *gin.Context, rdb *redis.Client, ip string) (int64, bool) {
	ctx := c.Request.Context()
	key := fmt.Sprintf("echo:rate_limit:%s:%d", ip, time.Now().Unix())

	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, false
	}
	if count == 1 {
		rdb.PExpire(ctx, key, limitWindow+time.Second)
	}
	return count, true
}

func rejectTooFast(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"ok":      0,
		"code":    http.StatusTooManyRequests,
		"message": "等..等一下，太快了 ∑(っ °Д °;)っ",
	})
}
