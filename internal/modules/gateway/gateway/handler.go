package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the socket.io transport plus a small online-count probe.
func RegisterRoutes(g *gin.RouterGroup, hub *Hub) {
	sock := gin.WrapH(hub.Handler())
	g.Any("/socket.io", sock)
	g.Any("/socket.io/*any", sock)

	g.GET("/gateway/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": hub.ClientCount()})
	})
}
