package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailroom/internal/model"
)

// SenderCache keeps role -> relay credentials in Redis so the
// dispatcher does not hit the database on every batch. A cache miss or
// a Redis outage is never an error; callers fall through to the
// repository.
type SenderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSenderCache(rdb *redis.Client, ttl time.Duration) *SenderCache {
	return &SenderCache{rdb: rdb, ttl: ttl}
}

func senderKey(role string) string {
	return fmt.Sprintf("sender:%s", role)
}

func (c *SenderCache) Get(ctx context.Context, role string) (*model.SenderAccount, bool) {
	data, err := c.rdb.Get(ctx, senderKey(role)).Bytes()
	if err != nil {
		return nil, false
	}

	var a model.SenderAccount
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, false
	}
	return &a, true
}

func (c *SenderCache) Set(ctx context.Context, a *model.SenderAccount) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, senderKey(a.Role), data, c.ttl)
}
