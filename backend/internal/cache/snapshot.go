package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// 快照保留 30 天；Get/Set 都会刷新过期时间（滑动过期）。
// 30 天无人打开的页面，快照过期后由冷启动路径从关系库重建。
const DefaultSnapshotTTL = 30 * 24 * time.Hour

// SnapshotCache CRDT 快照的键值存储（带滑动 TTL）
type SnapshotCache interface {
	// Get 返回快照字节；不存在时返回 (nil, nil)
	Get(ctx context.Context, pageID string) ([]byte, error)
	Set(ctx context.Context, pageID string, data []byte) error
}

// 具体实现：基于 redis 的 SnapshotCache
type redisSnapshot struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisSnapshot(rdb redis.UniversalClient, ttl time.Duration) SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &redisSnapshot{rdb: rdb, ttl: ttl}
}

func (s *redisSnapshot) Get(ctx context.Context, pageID string) ([]byte, error) {
	// GETEX：读取同时续期，实现滑动过期
	data, err := s.rdb.GetEx(ctx, snapshotKey(pageID), s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *redisSnapshot) Set(ctx context.Context, pageID string, data []byte) error {
	return s.rdb.Set(ctx, snapshotKey(pageID), data, s.ttl).Err()
}
