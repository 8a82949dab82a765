// Package redis provides a Redis-backed ledger backend.
//
// Each record kind is a hash keyed by natural id and the notification log is
// a sorted set scored by sequence. Commits run as WATCH/MULTI transactions on
// the sequence key so concurrent writers cannot interleave.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyPoolSize     = "pool_size"
	KeyKeyPrefix    = "key_prefix"
)

func init() {
	physical.Register("redis", NewFactory, Defaults)
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() map[string]string {
	return map[string]string{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "0",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyPoolSize:     "0",
		KeyKeyPrefix:    "skilltoken:",
	}
}

// NewFactory creates a new Redis backend from a configuration map.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	addr := storage.GetString(config, KeyAddr, "")
	if addr == "" {
		return nil, storage.NewConfigError("redis", KeyAddr, "cannot be empty")
	}

	db, err := storage.GetInt(config, KeyDB, 0)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyDB, config[KeyDB], err.Error())
	}
	if db < 0 {
		return nil, storage.NewConfigErrorWithValue("redis", KeyDB, config[KeyDB], "must be non-negative")
	}

	maxRetries, err := storage.GetInt(config, KeyMaxRetries, 3)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyMaxRetries, config[KeyMaxRetries], err.Error())
	}

	dialTimeout, err := storage.GetDuration(config, KeyDialTimeout, 5*time.Second)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyDialTimeout, config[KeyDialTimeout], err.Error())
	}

	readTimeout, err := storage.GetDuration(config, KeyReadTimeout, 3*time.Second)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyReadTimeout, config[KeyReadTimeout], err.Error())
	}

	writeTimeout, err := storage.GetDuration(config, KeyWriteTimeout, 3*time.Second)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyWriteTimeout, config[KeyWriteTimeout], err.Error())
	}

	poolSize, err := storage.GetInt(config, KeyPoolSize, 0)
	if err != nil {
		return nil, storage.NewConfigErrorWithValue("redis", KeyPoolSize, config[KeyPoolSize], err.Error())
	}

	password := storage.GetString(config, KeyPassword, "")
	keyPrefix := storage.GetString(config, KeyKeyPrefix, "skilltoken:")

	opts := &redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.NewConfigErrorWithCause("redis", KeyAddr, "failed to connect", err)
	}

	slog.InfoContext(ctx, "redis ledger initialized", "addr", addr, "db", db, "key_prefix", keyPrefix)
	return NewWithClient(client, keyPrefix), nil
}

// Backend is a Redis implementation of physical.Backend.
type Backend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewWithClient creates a new backend with an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) rolesKey() string   { return b.prefix + "roles" }
func (b *Backend) coursesKey() string { return b.prefix + "courses" }
func (b *Backend) certsKey() string   { return b.prefix + "certificates" }
func (b *Backend) grantsKey() string  { return b.prefix + "grants" }
func (b *Backend) eventsKey() string  { return b.prefix + "events" }
func (b *Backend) seqKey() string     { return b.prefix + "seq" }

// Keys lists every key the backend writes.
func (b *Backend) Keys() []string {
	return []string{b.rolesKey(), b.coursesKey(), b.certsKey(), b.grantsKey(), b.eventsKey(), b.seqKey()}
}

// Load reads every hash into a snapshot.
func (b *Backend) Load(ctx context.Context) (*physical.Snapshot, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	snap := &physical.Snapshot{}
	var err error
	if snap.Roles, err = hashValues[credential.RoleAssignment](ctx, b.client, b.rolesKey()); err != nil {
		return nil, err
	}
	if snap.Courses, err = hashValues[credential.Course](ctx, b.client, b.coursesKey()); err != nil {
		return nil, err
	}
	if snap.Certificates, err = hashValues[credential.Certificate](ctx, b.client, b.certsKey()); err != nil {
		return nil, err
	}
	if snap.Grants, err = hashValues[credential.Grant](ctx, b.client, b.grantsKey()); err != nil {
		return nil, err
	}
	if snap.LastSeq, err = readSeq(ctx, b.client, b.seqKey()); err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}
	snap.Sort()
	return snap, nil
}

func hashValues[T any](ctx context.Context, c redis.Cmdable, key string) ([]T, error) {
	raw, err := c.HVals(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", key, err)
	}
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("redis load %s: decode: %w", key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readSeq(ctx context.Context, c getter, key string) (uint64, error) {
	last, err := c.Get(ctx, key).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return last, err
}

// Apply writes the commit inside MULTI/EXEC while watching the sequence key.
func (b *Backend) Apply(ctx context.Context, c *physical.Commit) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	fields, err := b.encode(c)
	if err != nil {
		return err
	}

	err = b.client.Watch(ctx, func(tx *redis.Tx) error {
		if len(c.Events) > 0 {
			last, err := readSeq(ctx, tx, b.seqKey())
			if err != nil {
				return err
			}
			if err := physical.CheckSequence(last, c.Events); err != nil {
				return err
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for key, values := range fields.hashes {
				if len(values) > 0 {
					pipe.HSet(ctx, key, values)
				}
			}
			if len(fields.events) > 0 {
				pipe.ZAdd(ctx, b.eventsKey(), fields.events...)
				pipe.Set(ctx, b.seqKey(), c.Events[len(c.Events)-1].Seq, 0)
			}
			return nil
		})
		return err
	}, b.seqKey())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, physical.ErrSequenceConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%w: concurrent writer", physical.ErrSequenceConflict)
	default:
		return fmt.Errorf("redis apply: %w", err)
	}
}

type encodedCommit struct {
	hashes map[string]map[string]any
	events []redis.Z
}

func (b *Backend) encode(c *physical.Commit) (*encodedCommit, error) {
	enc := &encodedCommit{hashes: map[string]map[string]any{
		b.rolesKey():   {},
		b.coursesKey(): {},
		b.certsKey():   {},
		b.grantsKey():  {},
	}}
	put := func(key, field string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("redis apply: encode %s/%s: %w", key, field, err)
		}
		enc.hashes[key][field] = string(data)
		return nil
	}

	for _, r := range c.Roles {
		if err := put(b.rolesKey(), string(r.Account)+"/"+string(r.Role), r); err != nil {
			return nil, err
		}
	}
	for _, course := range c.Courses {
		if err := put(b.coursesKey(), strconv.FormatUint(course.ID, 10), course); err != nil {
			return nil, err
		}
	}
	for _, cert := range c.Certificates {
		if err := put(b.certsKey(), strconv.FormatUint(cert.TokenID, 10), cert); err != nil {
			return nil, err
		}
	}
	for _, g := range c.Grants {
		if err := put(b.grantsKey(), strconv.FormatUint(g.ID, 10), g); err != nil {
			return nil, err
		}
	}
	for _, e := range c.Events {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("redis apply: encode event %d: %w", e.Seq, err)
		}
		enc.events = append(enc.events, redis.Z{Score: float64(e.Seq), Member: string(data)})
	}
	return enc, nil
}

// Events returns up to limit events after the given sequence.
func (b *Backend) Events(ctx context.Context, after uint64, limit int) ([]credential.Event, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	opt := &redis.ZRangeBy{
		Min: "(" + strconv.FormatUint(after, 10),
		Max: "+inf",
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	raw, err := b.client.ZRangeByScore(ctx, b.eventsKey(), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("redis events: %w", err)
	}

	events := make([]credential.Event, 0, len(raw))
	for _, s := range raw {
		var e credential.Event
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("redis events: decode: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	return b.client.Ping(ctx).Err()
}

// Stats returns storage statistics. Size is the memory used by the event log.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	count, err := b.client.ZCard(ctx, b.eventsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis stats: %w", err)
	}
	// MEMORY USAGE is missing on some Redis-compatible servers.
	size, err := b.client.MemoryUsage(ctx, b.eventsKey()).Result()
	if err != nil {
		size = 0
	}

	return &physical.Stats{
		BackendType: "redis",
		Events:      count,
		SizeBytes:   size,
	}, nil
}

// Close closes the Redis client.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}
