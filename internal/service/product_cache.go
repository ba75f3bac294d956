package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kyukim/payment-service/internal/domain"
	"github.com/kyukim/payment-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

// cachedProductReader is a read-through cache over the catalog. Prices are
// only consulted at draft creation, so a short TTL keeps drafts honest
// without hammering the products table on every checkout.
type cachedProductReader struct {
	next        repository.ProductReader
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewCachedProductReader(next repository.ProductReader, redisClient *redis.Client) repository.ProductReader {
	return &cachedProductReader{
		next:        next,
		redisClient: redisClient,
		cacheTTL:    time.Minute * 10,
	}
}

func (c *cachedProductReader) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	key := fmt.Sprintf("product:%s", id)

	val, err := c.redisClient.Get(ctx, key).Result()
	if err == nil {
		var product domain.Product
		if err := json.Unmarshal([]byte(val), &product); err == nil {
			return &product, nil
		}
	}

	product, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(product); err == nil {
		c.redisClient.Set(ctx, key, data, c.cacheTTL)
	}

	return product, nil
}
