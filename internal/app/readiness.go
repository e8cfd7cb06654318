package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/commentflow/internal/config"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPinger is the minimal interface a Redis-backed cache needs for
// readiness.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// BuildReadinessChecks returns three readiness checks: db, redis and the
// viewer service.
func BuildReadinessChecks(cfg config.Config, pool Pinger, rdb RedisPinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx)
	}
	viewerCheck := func(ctx context.Context) error {
		if cfg.ViewerURL == "" {
			return fmt.Errorf("viewer url not configured")
		}
		client := &http.Client{Timeout: 2 * time.Second}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ViewerURL+"/healthz", nil)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("viewer status %d", resp.StatusCode)
	}
	return dbCheck, redisCheck, viewerCheck
}
