// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Postgate Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	pgerr "github.com/postgate-dev/postgate/pkg/errors"
)

const (
	visitorSweepInterval = time.Minute
	visitorIdleTimeout   = 5 * time.Minute
	defaultMaxVisitors   = 10000
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxVisitors caps tracked IPs; the least recently seen are evicted.
	MaxVisitors int
}

// Validate checks the settings and applies the MaxVisitors default.
func (c *RateLimitConfig) Validate() error {
	switch {
	case c.RequestsPerSecond < 0:
		return pgerr.Errorf(pgerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	case c.RequestsPerSecond > 0 && c.Burst <= 0:
		return pgerr.Errorf(pgerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got %d)", c.Burst)
	case c.MaxVisitors < 0:
		return pgerr.Errorf(pgerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = defaultMaxVisitors
	}
	return nil
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type visitors struct {
	mu  sync.Mutex
	cfg RateLimitConfig
	m   map[string]*visitor
}

func (v *visitors) allow(ip string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	vis, ok := v.m[ip]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(rate.Limit(v.cfg.RequestsPerSecond), v.cfg.Burst)}
		v.m[ip] = vis
	}
	vis.lastSeen = now
	return vis.limiter.AllowN(now, 1)
}

// sweep drops idle visitors and enforces MaxVisitors.
func (v *visitors) sweep(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for ip, vis := range v.m {
		if now.Sub(vis.lastSeen) > visitorIdleTimeout {
			delete(v.m, ip)
		}
	}
	if v.cfg.MaxVisitors <= 0 || len(v.m) <= v.cfg.MaxVisitors {
		return
	}

	ips := make([]string, 0, len(v.m))
	for ip := range v.m {
		ips = append(ips, ip)
	}
	slices.SortFunc(ips, func(a, b string) int { return v.m[a].lastSeen.Compare(v.m[b].lastSeen) })
	evict := len(ips) - v.cfg.MaxVisitors
	for _, ip := range ips[:evict] {
		delete(v.m, ip)
	}
	slog.Warn("rate limiter visitor cap enforced", "evicted", evict, "max_visitors", v.cfg.MaxVisitors)
}

// rateLimitMiddleware enforces per-IP limits. It is a pass-through when
// RequestsPerSecond is zero. Closing done stops the sweeper.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	v := &visitors{cfg: cfg, m: make(map[string]*visitor)}
	go func() {
		ticker := time.NewTicker(visitorSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				v.sweep(now)
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !v.allow(ip, time.Now()) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
