package repositories

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// generationTTL keeps generation keys well past any count's lifetime.
const generationTTL = 24 * time.Hour

// UnreadCache stores per-recipient unread counts in front of the notification
// table. Every Invalidate bumps the recipient's generation, and Set only
// stores a count when the generation still matches the one read before the
// count was computed, so a count read before a write cannot outlive it.
type UnreadCache interface {
	Get(ctx context.Context, userID uint) (int64, bool, error)
	Generation(ctx context.Context, userID uint) (int64, error)
	Set(ctx context.Context, userID uint, count, generation int64) error
	Invalidate(ctx context.Context, userIDs ...uint) error
}

// RedisUnreadCache implements UnreadCache with a count key and a generation
// key per recipient.
type RedisUnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisUnreadCache(client *redis.Client, ttl time.Duration) *RedisUnreadCache {
	return &RedisUnreadCache{client: client, ttl: ttl}
}

func unreadKey(userID uint) string {
	return fmt.Sprintf("notifications:unread:%d", userID)
}

func generationKey(userID uint) string {
	return fmt.Sprintf("notifications:unread:%d:gen", userID)
}

func (c *RedisUnreadCache) Get(ctx context.Context, userID uint) (int64, bool, error) {
	v, err := c.client.Get(ctx, unreadKey(userID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "redis get unread")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "parse unread count %q", v)
	}
	return n, true, nil
}

func (c *RedisUnreadCache) Generation(ctx context.Context, userID uint) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, errors.Wrap(err, "redis get unread generation")
}

// Set writes count under WATCH on the generation key. A concurrent
// Invalidate aborts the write.
func (c *RedisUnreadCache) Set(ctx context.Context, userID uint, count, generation int64) error {
	genKey := generationKey(userID)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, unreadKey(userID), count, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if err == redis.TxFailedErr {
		return nil
	}
	return errors.Wrap(err, "redis set unread")
}

func (c *RedisUnreadCache) Invalidate(ctx context.Context, userIDs ...uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), generationTTL)
			pipe.Del(ctx, unreadKey(id))
		}
		return nil
	})
	return errors.Wrap(err, "redis invalidate unread")
}

// NoopUnreadCache always misses. It is used when REDIS_ADDR is empty.
type NoopUnreadCache struct{}

func (NoopUnreadCache) Get(context.Context, uint) (int64, bool, error)  { return 0, false, nil }
func (NoopUnreadCache) Generation(context.Context, uint) (int64, error) { return 0, nil }
func (NoopUnreadCache) Set(context.Context, uint, int64, int64) error   { return nil }
func (NoopUnreadCache) Invalidate(context.Context, ...uint) error       { return nil }
