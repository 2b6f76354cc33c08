// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides the TTL cache used for dashboard snapshots.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jllopis/riskcrew/pkg/config"
	"github.com/jllopis/riskcrew/pkg/errors"
)

// Cache stores JSON-encodable values with a TTL.
type Cache interface {
	// Get decodes the value at key into dst and reports whether it was found.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores v under key with the cache TTL.
	Set(ctx context.Context, key string, v any) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// New builds the cache selected by cfg.Provider.
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemory(cfg.TTL), nil
	case "redis":
		return DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache provider %q", cfg.Provider)
	}
}

// Key joins parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "encode cache value", err)
	}
	return data, nil
}

func decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New(errors.CodeInternal, "decode cache value", err)
	}
	return nil
}

const defaultTTL = 5 * time.Minute

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
