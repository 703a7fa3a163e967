package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization, X-User-ID, x-ms-token-aad-access-token, x-ms-client-principal"
)

// corsHeaders sets the permissive CORS headers on every response, including
// requests without an Origin header which the cors middleware ignores.
func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", corsAllowMethods)
		header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		c.Next()
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	logEntry := logger.WithField("component", "http_middleware")

	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		c.Next()

		fields := logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
			"client_ip":  c.ClientIP(),
			"bytes":      c.Writer.Size(),
			"user_agent": c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		logEntry.WithFields(fields).Info("Request processed")
	}
}

type (
	clientLimiter struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	// ipRateLimiter keeps one token bucket per client ip. Buckets idle for
	// longer than idleTTL are dropped on the next sweep.
	ipRateLimiter struct {
		mu        sync.Mutex
		clients   map[string]*clientLimiter
		limit     rate.Limit
		burst     int
		idleTTL   time.Duration
		lastSweep time.Time
		now       func() time.Time
	}
)

// newIPRateLimiter allows requests per window for each client ip.
func newIPRateLimiter(requests int, window time.Duration) *ipRateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &ipRateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
		idleTTL: 3 * window,
		now:     time.Now,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idleTTL {
		for key, client := range l.clients {
			if now.Sub(client.lastSeen) > l.idleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	client, ok := l.clients[ip]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = client
	}
	client.lastSeen = now
	return client.limiter.AllowN(now, 1)
}

func (l *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
				Error:   "too many requests",
				Message: "upload rate limit exceeded, retry later",
			})
			return
		}
		c.Next()
	}
}
