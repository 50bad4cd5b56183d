package handler

import (
	"net/http"
	"sync"
	"time"

	"mygpt-backend/internal/auth"
	"mygpt-backend/internal/config"
	"mygpt-backend/internal/model"
	"mygpt-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestLogger logs one structured line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		if origin := c.GetHeader("Origin"); origin != "" {
			entry = entry.WithField("origin", origin)
		}
		if user := auth.UserID(c); user != "" {
			entry = entry.WithField("user", user)
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request")
		}
	}
}

// HTTPSRedirect sends plain-HTTP production traffic to https. The health check
// stays reachable over HTTP for load balancers.
func HTTPSRedirect(cfg config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.IsProduction() || c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Next()
			return
		}

		c.Redirect(http.StatusMovedPermanently, "https://"+c.Request.Host+c.Request.URL.RequestURI())
		c.Abort()
	}
}

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per authenticated user, falling back to the
// client IP for anonymous requests.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
	lastGC   time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(rpm)),
		burst:    burst,
		limiters: make(map[string]*userLimiter),
		lastGC:   time.Now(),
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastGC) > limiterIdleTTL {
		for k, l := range r.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTTL {
				delete(r.limiters, k)
			}
		}
		r.lastGC = now
	}

	l, ok := r.limiters[key]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = l
	}
	l.lastSeen = now
	return l.limiter
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := auth.UserID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !r.get(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.ErrorResponse{
				Error:   "Too many requests",
				Message: "rate limit exceeded, try again shortly",
			})
			return
		}
		c.Next()
	}
}
