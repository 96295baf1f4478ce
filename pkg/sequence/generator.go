package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"maintenance-engine/pkg/rediskey"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out tenant-scoped, date-prefixed execution numbers such as
// "20240131-003". Numbers are unique per (tenant, date); the storage layer
// still enforces uniqueness on (tenant, execution_number) as a backstop.
type Generator interface {
	NextExecutionNumber(ctx context.Context, tenantID string, date time.Time) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextExecutionNumber(ctx context.Context, tenantID string, date time.Time) (string, error) {
	prefix := date.UTC().Format("20060102")
	key := rediskey.BuildExecutionSequenceKey(tenantID, prefix)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		// Daily counters only matter until well after the batch window closes.
		_ = g.rdb.Expire(ctx, key, 48*time.Hour).Err()
	}

	return fmt.Sprintf("%s-%03d", prefix, seq), nil
}

// MemoryGenerator is a process-local Generator used by tests and single-node
// deployments without redis.
type MemoryGenerator struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{seqs: make(map[string]int64)}
}

func (g *MemoryGenerator) NextExecutionNumber(_ context.Context, tenantID string, date time.Time) (string, error) {
	prefix := date.UTC().Format("20060102")
	key := tenantID + ":" + prefix

	g.mu.Lock()
	g.seqs[key]++
	seq := g.seqs[key]
	g.mu.Unlock()

	return fmt.Sprintf("%s-%03d", prefix, seq), nil
}
