package redisqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/FareWatch/internal/queue"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "fw:q:"

// RedisQueue — очередь джоб поверх redis:
//   - ready  (zset, score = run_at)  — готовые/отложенные джобы;
//   - leased (zset, score = истечение lease) — выданные консюмерам;
//   - data   (hash, id -> json)      — сами снапшоты;
//   - dead   (list)                  — исчерпавшие попытки, для операторов.
//
// Упавший до Ack консюмер ничего не теряет: после истечения lease
// джоба возвращается в ready и доставляется снова (at-least-once).
type RedisQueue struct {
	c      *redis.Client
	prefix string
}

func New(addr string) *RedisQueue {
	return &RedisQueue{
		c:      redis.NewClient(&redis.Options{Addr: addr}),
		prefix: defaultPrefix,
	}
}

func (q *RedisQueue) WithPrefix(prefix string) *RedisQueue {
	if prefix != "" {
		q.prefix = prefix
	}
	return q
}

func (q *RedisQueue) readyKey() string  { return q.prefix + "ready" }
func (q *RedisQueue) leasedKey() string { return q.prefix + "leased" }
func (q *RedisQueue) dataKey() string   { return q.prefix + "data" }
func (q *RedisQueue) deadKey() string   { return q.prefix + "dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, j queue.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "marshal job")
	}
	pipe := q.c.TxPipeline()
	pipe.HSet(ctx, q.dataKey(), j.ID, b)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(j.RunAt.UTC().UnixMilli()), Member: j.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "enqueue job")
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, now time.Time, lease time.Duration) (*queue.Job, error) {
	if err := q.reclaimExpired(ctx, now); err != nil {
		return nil, err
	}

	maxScore := float64(now.UTC().UnixMilli())
	ids, err := q.c.ZRangeByScore(ctx, q.readyKey(), &redis.ZRangeBy{
		Min: "-inf", Max: formatScore(maxScore), Count: 8,
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "range ready jobs")
	}

	for _, id := range ids {
		// Claim одной транзакцией: ZAdd в leased и ZRem из ready вместе,
		// чтобы падение консюмера не оставило джобу вне обоих zset-ов.
		// Точка арбитража между конкурентами — ZRem: джобу забирает тот,
		// у кого removed == 1; проигравший лишь обновил score чужого lease.
		leaseUntil := float64(now.UTC().Add(lease).UnixMilli())
		pipe := q.c.TxPipeline()
		pipe.ZAdd(ctx, q.leasedKey(), redis.Z{Score: leaseUntil, Member: id})
		claimed := pipe.ZRem(ctx, q.readyKey(), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errors.Wrap(err, "claim job")
		}
		if claimed.Val() == 0 {
			continue
		}

		b, err := q.c.HGet(ctx, q.dataKey(), id).Bytes()
		if err == redis.Nil {
			// Осиротевший id без payload — чистим и идём дальше.
			_ = q.c.ZRem(ctx, q.leasedKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "load job payload")
		}

		var j queue.Job
		if err := json.Unmarshal(b, &j); err != nil {
			_ = q.c.ZRem(ctx, q.leasedKey(), id).Err()
			_ = q.c.HDel(ctx, q.dataKey(), id).Err()
			slog.Error("drop malformed job payload", "job_id", id, "error", err.Error())
			continue
		}
		return &j, nil
	}
	return nil, nil
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	pipe := q.c.TxPipeline()
	pipe.ZRem(ctx, q.leasedKey(), id)
	pipe.HDel(ctx, q.dataKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "ack job")
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, j queue.Job, cause error) (bool, error) {
	if j.Attempt >= j.MaxAttempts {
		return false, q.bury(ctx, j, cause)
	}

	delay := queue.Backoff(j.Attempt)
	j.Attempt++
	j.RunAt = time.Now().UTC().Add(delay)

	b, err := json.Marshal(j)
	if err != nil {
		return false, errors.Wrap(err, "marshal job")
	}
	pipe := q.c.TxPipeline()
	pipe.ZRem(ctx, q.leasedKey(), j.ID)
	pipe.HSet(ctx, q.dataKey(), j.ID, b)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{Score: float64(j.RunAt.UnixMilli()), Member: j.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "requeue job")
	}
	return true, nil
}

// bury убирает джобу в dead-лист. Статус алерта не трогаем: без свежего
// last_checked_at он снова попадёт в выборку на следующем тике.
func (q *RedisQueue) bury(ctx context.Context, j queue.Job, cause error) error {
	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	dead := struct {
		queue.Job
		FailedAt time.Time `json:"failed_at"`
		Cause    string    `json:"cause,omitempty"`
	}{Job: j, FailedAt: time.Now().UTC(), Cause: causeText}

	b, err := json.Marshal(dead)
	if err != nil {
		return errors.Wrap(err, "marshal dead job")
	}
	pipe := q.c.TxPipeline()
	pipe.ZRem(ctx, q.leasedKey(), j.ID)
	pipe.HDel(ctx, q.dataKey(), j.ID)
	pipe.RPush(ctx, q.deadKey(), b)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "bury job")
	}
	slog.Error("job permanently failed",
		"job_id", j.ID, "alert_id", j.AlertID, "attempts", j.Attempt, "cause", causeText)
	return nil
}

// reclaimExpired возвращает в ready джобы с истёкшим lease.
func (q *RedisQueue) reclaimExpired(ctx context.Context, now time.Time) error {
	maxScore := formatScore(float64(now.UTC().UnixMilli()))
	ids, err := q.c.ZRangeByScore(ctx, q.leasedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: maxScore,
	}).Result()
	if err != nil {
		return errors.Wrap(err, "range expired leases")
	}
	for _, id := range ids {
		// Та же транзакционная схема, что и в claim: ZAdd в ready и
		// ZRem из leased вместе; ZRem — арбитраж между reclaim-ерами.
		pipe := q.c.TxPipeline()
		pipe.ZAdd(ctx, q.readyKey(), redis.Z{
			Score: float64(now.UTC().UnixMilli()), Member: id,
		})
		removed := pipe.ZRem(ctx, q.leasedKey(), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return errors.Wrap(err, "reclaim lease")
		}
		if removed.Val() == 0 {
			continue
		}
		slog.Warn("redelivering job after expired lease", "job_id", id)
	}
	return nil
}

type Stats struct {
	Ready  int64 `json:"ready"`
	Leased int64 `json:"leased"`
	Dead   int64 `json:"dead"`
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.c.TxPipeline()
	ready := pipe.ZCard(ctx, q.readyKey())
	leased := pipe.ZCard(ctx, q.leasedKey())
	dead := pipe.LLen(ctx, q.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, errors.Wrap(err, "queue stats")
	}
	return Stats{Ready: ready.Val(), Leased: leased.Val(), Dead: dead.Val()}, nil
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
