package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockKey   = "clinic-ledger:writer"
	lockPollInterval = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// Удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Продлевает аренду, только если ключ всё ещё принадлежит владельцу токена.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// ConnectRedis подключается к Redis и проверяет соединение.
func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisLocker сериализует запись между несколькими экземплярами сервиса
// с помощью аренды ключа в Redis.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker создаёт блокировку с арендой на ttl.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		key:    defaultLockKey,
		ttl:    ttl,
		logger: logger,
	}
}

// Lock опрашивает Redis, пока не получит аренду или не будет отменён контекст.
// Пока блокировка удерживается, аренда продлевается каждую треть ttl.
func (l *RedisLocker) Lock(ctx context.Context) (context.Context, func(), error) {
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, nil, fmt.Errorf("acquire writer lock: %w", err)
		}
		if ok {
			leaseCtx, cancel := context.WithCancelCause(ctx)
			done := make(chan struct{})
			go l.keepAlive(leaseCtx, cancel, token, done)

			unlock := func() {
				cancel(nil)
				<-done
				l.release(token)
			}
			return leaseCtx, unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int64()
		if ctx.Err() != nil {
			return
		}
		if err != nil || renewed != 1 {
			l.logger.Error("writer lock lease lost", zap.String("key", l.key), zap.Error(err))
			cancel(ErrLeaseLost)
			return
		}
	}
}

func (l *RedisLocker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
		l.logger.Warn("release writer lock", zap.Error(err))
	}
}
