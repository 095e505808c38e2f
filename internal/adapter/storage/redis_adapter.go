package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	cartKeyPrefix     = "cart:"
	customerKeyPrefix = "customer:"
	stockKeyPrefix    = "stock:"
	idempotencyKeyTTL = 24 * time.Hour
)

// RedisAdapter stores visitor sessions (cart and customer hashes that expire
// with the session), idempotency keys and the last-known stock cache.
type RedisAdapter struct {
	client     *redis.Client
	sessionTTL time.Duration
	stockTTL   time.Duration
}

func NewRedisAdapter(client *redis.Client, sessionTTL, stockTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{
		client:     client,
		sessionTTL: sessionTTL,
		stockTTL:   stockTTL,
	}
}

func (r *RedisAdapter) LoadCart(ctx context.Context, visitorID string) (domain.Cart, error) {
	fields, err := r.client.HGetAll(ctx, cartKeyPrefix+visitorID).Result()
	if err != nil {
		return nil, err
	}

	cart := make(domain.Cart, len(fields))
	for field, value := range fields {
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("cart entry %q: %w", field, err)
		}
		id, err := domain.ParseCartEntry(field, qty)
		if err != nil {
			return nil, err
		}
		cart[id] = qty
	}
	return cart, nil
}

// SaveCart replaces the whole hash in one MULTI/EXEC so a reader never sees
// half a cart.
func (r *RedisAdapter) SaveCart(ctx context.Context, visitorID string, cart domain.Cart) error {
	key := cartKeyPrefix + visitorID

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if cart.IsEmpty() {
			return nil
		}
		values := make(map[string]any, len(cart))
		for id, qty := range cart {
			values[strconv.FormatInt(id, 10)] = qty
		}
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, r.sessionTTL)
		return nil
	})
	return err
}

func (r *RedisAdapter) LoadCustomer(ctx context.Context, visitorID string) (domain.CustomerInfo, bool, error) {
	fields, err := r.client.HGetAll(ctx, customerKeyPrefix+visitorID).Result()
	if err != nil {
		return domain.CustomerInfo{}, false, err
	}
	if len(fields) == 0 {
		return domain.CustomerInfo{}, false, nil
	}
	return domain.CustomerInfo{
		Name:    fields["name"],
		Address: fields["address"],
		Phone:   fields["phone"],
		Note:    fields["note"],
	}, true, nil
}

func (r *RedisAdapter) SaveCustomer(ctx context.Context, visitorID string, info domain.CustomerInfo) error {
	key := customerKeyPrefix + visitorID

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"name":    info.Name,
			"address": info.Address,
			"phone":   info.Phone,
			"note":    info.Note,
		})
		pipe.Expire(ctx, key, r.sessionTTL)
		return nil
	})
	return err
}

func (r *RedisAdapter) ClearCheckout(ctx context.Context, visitorID string) error {
	return r.client.Del(ctx, cartKeyPrefix+visitorID, customerKeyPrefix+visitorID).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	stock, err := r.client.Get(ctx, stockKey(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return stock, true, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, productID int64, stock int) error {
	return r.client.Set(ctx, stockKey(productID), stock, r.stockTTL).Err()
}

func (r *RedisAdapter) InvalidateStock(ctx context.Context, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = stockKey(id)
	}
	return r.client.Del(ctx, keys...).Err()
}

func stockKey(productID int64) string {
	return stockKeyPrefix + strconv.FormatInt(productID, 10)
}
