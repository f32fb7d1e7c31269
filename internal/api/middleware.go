package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/healthsense-prediction-server/internal/domain"
)

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware adds a unique request ID to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// loggingMiddleware emits one structured log line per request
func loggingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(startTime),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString("request_id"),
		}).Info("Request handled")
	}
}

// clientLimiters tracks a token bucket per client IP. Idle entries are swept
// periodically so the map does not grow without bound.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rps      rate.Limit
	burst    int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(rps rate.Limit, burst int) *clientLimiters {
	cl := &clientLimiters{
		limiters: make(map[string]*clientLimiter),
		rps:      rps,
		burst:    burst,
	}
	go cl.sweep()
	return cl
}

func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	entry, ok := cl.limiters[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (cl *clientLimiters) sweep() {
	for range time.Tick(time.Minute) {
		cl.mu.Lock()
		for ip, entry := range cl.limiters {
			if time.Since(entry.lastSeen) > 3*time.Minute {
				delete(cl.limiters, ip)
			}
		}
		cl.mu.Unlock()
	}
}

// rateLimitMiddleware applies a per-client token bucket
func rateLimitMiddleware(cfg domain.ServerConfig) gin.HandlerFunc {
	rps := cfg.RateLimitPerSec
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 2 * rps
	}

	limiters := newClientLimiters(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiters.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": domain.NewAppError(domain.ErrCodeRateLimit,
					"rate limit exceeded", "", c.GetString("request_id")),
			})
			return
		}
		c.Next()
	}
}
