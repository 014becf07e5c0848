package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-proxy/api/internal/llm/types"
	"ticket-proxy/api/internal/ticket"
)

const keyPrefix = "ticket:"

// PayloadHash identifies a submission for a given model and strategy.
func PayloadHash(model, strategy string, p types.Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{'|'})
	h.Write([]byte(strategy))
	h.Write([]byte{'|'})
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Cache keeps recent records keyed by payload hash.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses url, applies timeouts and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Cache) Get(ctx context.Context, hash string) (ticket.Record, bool, error) {
	b, err := c.rdb.Get(ctx, keyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var rec ticket.Record
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		// a corrupt entry counts as a miss
		return nil, false, nil
	}
	return rec, true, nil
}

func (c *Cache) Set(ctx context.Context, hash string, rec ticket.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, keyPrefix+hash, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
