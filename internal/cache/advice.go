package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const adviceKeyPrefix = "refill_advice"

// Advice kinds, one per persisted table.
const (
	KindProducts  = "products"
	KindLocations = "locations"
)

// AdviceRows is the shape the advice reader returns: one column map per row.
type AdviceRows = []map[string]any

// AdviceCache keeps read responses over the advice tables until the next
// forecast run replaces them.
type AdviceCache interface {
	Get(ctx context.Context, kind, location string) (AdviceRows, bool, error)
	Set(ctx context.Context, kind, location string, rows AdviceRows) error
	InvalidateAll(ctx context.Context) error
}

type redisAdviceCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopAdviceCache struct{}

// NewAdviceCache connects to Redis when caching is enabled and falls back
// to a cache that never hits otherwise.
func NewAdviceCache(cfg config.CacheConfig) (AdviceCache, error) {
	if !cfg.Enabled {
		return &noopAdviceCache{}, nil
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisAdviceCache{client: client, ttl: adviceTTL(cfg)}, nil
}

func NewNoopAdviceCache() AdviceCache {
	return &noopAdviceCache{}
}

func (c *redisAdviceCache) Get(ctx context.Context, kind, location string) (AdviceRows, bool, error) {
	payload, err := c.client.Get(ctx, adviceKey(kind, location)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var rows AdviceRows
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, false, fmt.Errorf("decode advice cache: %w", err)
	}
	return rows, true, nil
}

func (c *redisAdviceCache) Set(ctx context.Context, kind, location string, rows AdviceRows) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode advice cache: %w", err)
	}
	if err := c.client.Set(ctx, adviceKey(kind, location), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisAdviceCache) InvalidateAll(ctx context.Context) error {
	n, err := deleteKeysWithPrefix(ctx, c.client, adviceKeyPrefix+":")
	if err != nil {
		return err
	}
	log.Debug().Int("keys", n).Msg("advice cache invalidated")
	return nil
}

func (n *noopAdviceCache) Get(ctx context.Context, kind, location string) (AdviceRows, bool, error) {
	return nil, false, nil
}

func (n *noopAdviceCache) Set(ctx context.Context, kind, location string, rows AdviceRows) error {
	return nil
}

func (n *noopAdviceCache) InvalidateAll(ctx context.Context) error {
	return nil
}

// adviceKey hashes the location so arbitrary location codes stay safe
// inside a key.
func adviceKey(kind, location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return fmt.Sprintf("%s:%s:all", adviceKeyPrefix, kind)
	}
	hash := sha1.Sum([]byte(location))
	return fmt.Sprintf("%s:%s:%s", adviceKeyPrefix, kind, hex.EncodeToString(hash[:]))
}
