package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const streamKeyPrefix = "stream:"

// RedisRegistry keeps live-stream entries in Redis so several bridge
// replicas can be listed together. Entry TTL is enforced by Redis itself.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(redisURI string) (*RedisRegistry, error) {
	log := log.WithField("prefix", "NewRedisRegistry")
	opts, err := redis.ParseURL(redisURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URI: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	log.Infof("connected to %v", opts.Addr)
	return &RedisRegistry{client: client}, nil
}

func (r *RedisRegistry) Add(ctx context.Context, info StreamInfo, ttl time.Duration) error {
	data, err := sonic.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, streamKeyPrefix+info.ClientID, data, ttl).Err()
}

func (r *RedisRegistry) Touch(ctx context.Context, clientID string, ttl time.Duration) error {
	return r.client.Expire(ctx, streamKeyPrefix+clientID, ttl).Err()
}

func (r *RedisRegistry) Remove(ctx context.Context, clientID string) error {
	return r.client.Del(ctx, streamKeyPrefix+clientID).Err()
}

func (r *RedisRegistry) List(ctx context.Context) ([]StreamInfo, error) {
	var infos []StreamInfo
	iter := r.client.Scan(ctx, 0, streamKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				// expired between SCAN and GET
				continue
			}
			return nil, err
		}
		var info StreamInfo
		if err := sonic.Unmarshal(data, &info); err != nil {
			log.WithField("prefix", "RedisRegistry.List").Warnf("skipping malformed entry %v: %v", iter.Val(), err)
			continue
		}
		infos = append(infos, info)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos, nil
}

func (r *RedisRegistry) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
