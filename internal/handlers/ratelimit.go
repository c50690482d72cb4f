package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/versefriends/backend/internal/logging"
)

// RateLimiter is the minimal interface required to guard mutating endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

// allowRequest buckets authenticated callers by user id and anonymous ones by client IP.
func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(rateLimitKey(r, scope))
}

func rateLimitKey(r *http.Request, scope string) string {
	subject := "ip:" + clientIP(r)
	if userID, ok := logging.UserIDFromContext(r.Context()); ok {
		subject = "user:" + strconv.FormatInt(userID, 10)
	}
	if scope == "" {
		return subject
	}
	return scope + ":" + subject
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
