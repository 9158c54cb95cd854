package quotations

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix = "quotes:detail:"
	cacheGenPrefix = "quotes:gen:"
	loadTimeout    = 10 * time.Second
)

// Cache is a redis read-through cache for quote detail. A nil Cache, or one
// without a client, always calls the loader.
//
// Every Invalidate bumps a per-quote generation. A load only stores its result
// when the generation it started under is still current, so a read that raced
// a committed write never repopulates the old value.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(id int64) string {
	return cacheKeyPrefix + strconv.FormatInt(id, 10)
}

func generationKey(id int64) string {
	return cacheGenPrefix + strconv.FormatInt(id, 10)
}

// Fetch returns the cached quote or populates it with loader. Concurrent
// misses for the same id and generation share one load, which runs detached
// from any single caller's cancellation.
func (c *Cache) Fetch(ctx context.Context, id int64, loader func(context.Context) (*Quote, error)) (*Quote, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := cacheKey(id)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var q Quote
		if err := json.Unmarshal(payload, &q); err == nil {
			return &q, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}
	gen, err := readGeneration(ctx, c.client, id)
	if err != nil {
		return loader(ctx)
	}

	ch := c.group.DoChan(key+"@"+gen, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		q, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(q); err == nil {
			_ = c.storeIfCurrent(loadCtx, id, gen, raw)
		}
		return q, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		q := *res.Val.(*Quote)
		return &q, nil
	}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, cmd getter, id int64) (string, error) {
	gen, err := cmd.Get(ctx, generationKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// storeIfCurrent writes raw unless the generation moved past gen. WATCH makes
// an Invalidate landing between the check and the write abort the write.
func (c *Cache) storeIfCurrent(ctx context.Context, id int64, gen string, raw []byte) error {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, id)
		if err != nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(id), raw, c.ttl)
			return nil
		})
		return err
	}, generationKey(id))
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Invalidate drops the cached detail for id and retires in-flight loads.
func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	return err
}
