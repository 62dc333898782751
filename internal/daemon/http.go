package daemon

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gabe/botpool/internal/logger"
)

// routes are the handlers of the daemon HTTP surface. A nil handler leaves
// its route unregistered.
type routes struct {
	metrics http.Handler
	health  http.Handler
	ws      http.Handler
}

func newRouter(log logger.Logger, r routes) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	if r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics))
	}
	if r.health != nil {
		engine.GET("/healthz", gin.WrapH(r.health))
	}
	if r.ws != nil {
		engine.GET("/ws", gin.WrapH(r.ws))
	}
	return engine
}

// requestLogger logs one line per request. Scrapes and probes go to debug.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	log = log.With(logger.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Warn("HTTP request failed", fields...)
		case path == "/metrics" || strings.HasPrefix(path, "/health"):
			log.Debug("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
