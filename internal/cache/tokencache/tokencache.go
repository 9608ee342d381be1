package tokencache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/FareWatch/internal/cache"
	"github.com/pkg/errors"
)

// Fetcher обменивает client credentials на bearer-токен.
// Возвращает токен и срок жизни, заявленный провайдером.
type Fetcher interface {
	FetchToken(ctx context.Context) (token string, expiresIn time.Duration, err error)
}

const (
	defaultSafetyMargin = 5 * time.Minute
	minTTL              = time.Minute
)

// Cache — один логический слот токена на провайдера поверх BytesCache.
// TTL намеренно короче заявленного expiry, чтобы не отдать почти
// протухший токен. Параллельные промахи могут сходить за токеном
// каждый сам — fetch дешёвый и идемпотентный, single-flight не нужен.
type Cache struct {
	cache        cache.BytesCache
	fetcher      Fetcher
	provider     string
	safetyMargin time.Duration
}

func New(c cache.BytesCache, provider string, f Fetcher) *Cache {
	return &Cache{
		cache:        c,
		fetcher:      f,
		provider:     provider,
		safetyMargin: defaultSafetyMargin,
	}
}

func (t *Cache) WithSafetyMargin(margin time.Duration) *Cache {
	if margin > 0 {
		t.safetyMargin = margin
	}
	return t
}

func (t *Cache) key() string {
	return fmt.Sprintf("token:%s", t.provider)
}

// Get возвращает валидный токен: из кэша либо свежим запросом к identity endpoint.
func (t *Cache) Get(ctx context.Context) (string, error) {
	b, ok, err := t.cache.Get(ctx, t.key())
	if err != nil {
		return "", err
	}
	if ok {
		return string(b), nil
	}

	slog.Info("fetching new auth token", "provider", t.provider)
	token, expiresIn, err := t.fetcher.FetchToken(ctx)
	if err != nil {
		return "", errors.Wrap(err, "fetch token")
	}

	ttl := expiresIn - t.safetyMargin
	if ttl < minTTL {
		ttl = minTTL
	}
	if err := t.cache.Set(ctx, t.key(), []byte(token), ttl); err != nil {
		// Кэш best-effort: токен уже на руках, отдаём его.
		slog.Warn("cache auth token", "provider", t.provider, "error", err.Error())
	}
	return token, nil
}

// Invalidate сбрасывает слот (вызывается после 401 от провайдера).
func (t *Cache) Invalidate(ctx context.Context) error {
	return errors.Wrap(t.cache.Del(ctx, t.key()), "invalidate token")
}
