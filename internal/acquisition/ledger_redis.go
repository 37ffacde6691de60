package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "reel:queue:"

	// Entries expire on their own so a crashed process cannot leave the
	// shared ledger littered with permanently 'active' items.
	redisEntryTTL = time.Hour * 24
)

// RedisConfig enables the Redis-backed queue ledger. When Address is empty
// the in-memory ledger is used instead.
type RedisConfig struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// redisLedger stores items as JSON entries with a TTL so that the queue
// survives process restarts and can be shared by multiple instances.
type redisLedger struct {
	client *redis.Client
}

func NewRedisLedger(config RedisConfig) (Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.Address, err)
	}

	return &redisLedger{client: client}, nil
}

func (ledger *redisLedger) Put(item *Item) error {
	return ledger.write(item)
}

func (ledger *redisLedger) Get(id uuid.UUID) (*Item, error) {
	raw, err := ledger.client.Get(context.Background(), redisKeyPrefix+id.String()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrItemNotFound
		}

		return nil, err
	}

	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entry %s: %w", id, err)
	}

	return &item, nil
}

func (ledger *redisLedger) Update(item *Item) error {
	exists, err := ledger.client.Exists(context.Background(), redisKeyPrefix+item.ID.String()).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrItemNotFound
	}

	return ledger.write(item)
}

func (ledger *redisLedger) Remove(id uuid.UUID) error {
	removed, err := ledger.client.Del(context.Background(), redisKeyPrefix+id.String()).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (ledger *redisLedger) List() ([]*Item, error) {
	ctx := context.Background()

	var items []*Item
	iter := ledger.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := ledger.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			// Entry expired between SCAN and GET.
			if errors.Is(err, redis.Nil) {
				continue
			}

			return nil, err
		}

		var item Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to decode ledger entry %s: %w", iter.Val(), err)
		}

		items = append(items, &item)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (ledger *redisLedger) write(item *Item) error {
	encoded, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry %s: %w", item.ID, err)
	}

	return ledger.client.Set(context.Background(), redisKeyPrefix+item.ID.String(), encoded, redisEntryTTL).Err()
}
