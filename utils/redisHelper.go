package utils

import (
	"context"
	"time"

	"github.com/mmdatafocus/shopdash_backend/config"
)

const dashboardKeyPrefix = "Dashboard:"

// DashboardRedisKey namespaces a cache key inside redis.
func DashboardRedisKey(key string) string {
	return dashboardKeyPrefix + key
}

// store instance under Dashboard:$key
func StoreRedis[T any](ctx context.Context, key string, obj *T, ttl time.Duration) error {
	return config.SetRedisObject(ctx, DashboardRedisKey(key), obj, ttl)
}

// get from redis
// returns nil if does not exist
func RetrieveRedis[T any](ctx context.Context, key string) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(ctx, DashboardRedisKey(key), &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

// remove instances, Dashboard:$key
func RemoveRedisItems(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, DashboardRedisKey(k))
	}
	return config.RemoveRedisKey(ctx, full...)
}

// clear every key starting with prefix, Dashboard:$prefix*
func RemoveRedisPrefix(ctx context.Context, prefix string) error {
	return config.RemoveRedisPattern(ctx, DashboardRedisKey(prefix)+"*")
}
