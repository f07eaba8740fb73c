// Package health reports liveness and readiness against this module's single real
// dependency: Redis. There is no database here — every keyspace in the storage
// substrate lives in Redis, so readiness reduces to "can we reach it."
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Status is the health verdict for a dependency or the service as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Checker reports readiness of the core's Redis-backed storage.
type Checker struct {
	rdb         *redis.Client
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a Checker over the given Redis client.
func New(rdb *redis.Client, serviceName, version string) *Checker {
	return &Checker{rdb: rdb, startTime: time.Now(), serviceName: serviceName, version: version}
}

// Response is the JSON-shaped health check result.
type Response struct {
	Status    Status     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Service   string     `json:"service"`
	Version   string     `json:"version"`
	Uptime    string     `json:"uptime"`
	Redis     Dependency `json:"redis"`
}

// Dependency is a single dependency's check result.
type Dependency struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Liveness reports the service is responsive, without checking Redis.
func (c *Checker) Liveness() Response {
	return Response{Status: StatusHealthy, Timestamp: time.Now().UTC(), Service: c.serviceName, Version: c.version}
}

// Readiness checks Redis connectivity and reports overall status.
func (c *Checker) Readiness(ctx context.Context) Response {
	resp := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Service:   c.serviceName,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).String(),
	}

	resp.Redis = c.checkRedis(ctx)
	if resp.Redis.Status != StatusHealthy {
		resp.Status = resp.Redis.Status
	}
	return resp
}

func (c *Checker) checkRedis(ctx context.Context) Dependency {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.rdb.Ping(checkCtx).Err(); err != nil {
		return Dependency{Status: StatusUnhealthy, LatencyMs: time.Since(start).Milliseconds(), Error: fmt.Sprintf("redis ping failed: %v", err)}
	}

	latency := time.Since(start).Milliseconds()
	status := StatusHealthy
	if latency > 500 {
		status = StatusDegraded
	}
	return Dependency{Status: status, LatencyMs: latency}
}
