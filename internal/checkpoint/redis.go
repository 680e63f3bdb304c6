package checkpoint

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
)

// DefaultPrefix namespaces checkpoint keys.
const DefaultPrefix = "meilisync:checkpoint:"

// RedisConfig holds connection parameters for the Redis store.
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	Prefix   string
	// TTL expires abandoned checkpoints. Zero keeps them forever.
	TTL time.Duration
}

// Redis stores offsets as plain string keys via rueidis.
type Redis struct {
	client rueidis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return newRedis(client, cfg.Prefix, cfg.TTL), nil
}

func newRedis(c rueidis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: c, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(index string) string { return r.prefix + index }

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *Redis) Close() {
	r.client.Close()
}

func (r *Redis) Load(ctx context.Context, index string) (int, bool, error) {
	cmd := r.client.B().Get().Key(r.key(index)).Build()
	s, err := r.client.Do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}
		return 0, false, &Error{Op: OpLoad, Index: index, Err: err}
	}
	off, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, &Error{Op: OpLoad, Index: index, Err: fmt.Errorf("corrupt offset %q", s)}
	}
	return off, true, nil
}

func (r *Redis) Save(ctx context.Context, index string, offset int) error {
	set := r.client.B().Set().Key(r.key(index)).Value(strconv.Itoa(offset))
	var cmd rueidis.Completed
	if r.ttl > 0 {
		cmd = set.Ex(r.ttl).Build()
	} else {
		cmd = set.Build()
	}
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpSave, Index: index, Err: err}
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, index string) error {
	cmd := r.client.B().Del().Key(r.key(index)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return &Error{Op: OpClear, Index: index, Err: err}
	}
	return nil
}
