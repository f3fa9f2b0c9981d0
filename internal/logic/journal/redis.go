package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pda-client-sol/internal/pkg/logger"
	"pda-client-sol/internal/pkg/types"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Redis key 前缀
const (
	entryPrefix   = "pdaclient:journal:tx"
	unresolvedKey = "pdaclient:journal:unresolved"
)

const defaultTTL = 7 * 24 * time.Hour

// RedisJournal 将交易记录写入 Redis，未决签名额外保存在一个集合中
type RedisJournal struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisJournal ttl<=0 时使用默认 7 天
func NewRedisJournal(rdb *redis.Client, ttl time.Duration) *RedisJournal {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisJournal{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *RedisJournal) getKey(sig types.Signature) string {
	return fmt.Sprintf("%s:%s", entryPrefix, sig)
}

func (r *RedisJournal) Record(ctx context.Context, e Entry) error {
	prev, err := r.Get(ctx, e.Signature)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	}

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = r.now()
	}
	if err == nil {
		e = merge(&prev, e)
	} else {
		e = merge(nil, e)
	}

	payload, err := sonic.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	sig := e.Signature.String()
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.getKey(e.Signature), payload, r.ttl)
	if e.Status.Resolved() {
		pipe.SRem(ctx, unresolvedKey, sig)
	} else {
		pipe.SAdd(ctx, unresolvedKey, sig)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis journal write error: %w", err)
	}
	return nil
}

func (r *RedisJournal) Get(ctx context.Context, sig types.Signature) (Entry, error) {
	val, err := r.rdb.Get(ctx, r.getKey(sig)).Bytes()
	switch {
	case err == redis.Nil:
		return Entry{}, ErrNotFound
	case err != nil:
		return Entry{}, fmt.Errorf("redis get error: %w", err)
	}

	var e Entry
	if err := sonic.Unmarshal(val, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshal journal entry %s: %w", sig, err)
	}
	return e, nil
}

// Pending 返回所有未决记录；已过期的签名顺带从集合中清理
func (r *RedisJournal) Pending(ctx context.Context) ([]Entry, error) {
	members, err := r.rdb.SMembers(ctx, unresolvedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers error: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	var stale []any
	for _, m := range members {
		sig, err := types.SignatureFromBase58(m)
		if err != nil {
			stale = append(stale, m)
			continue
		}
		e, err := r.Get(ctx, sig)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, m)
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if len(stale) > 0 {
		if err := r.rdb.SRem(ctx, unresolvedKey, stale...).Err(); err != nil {
			logger.Warnf("[Journal] 清理过期签名失败: %v", err)
		}
	}
	sortEntries(entries)
	return entries, nil
}
