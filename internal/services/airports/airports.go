package airports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/FareWatch/internal/cache"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
	"github.com/pkg/errors"
)

const DefaultTTL = 7 * 24 * time.Hour

// Service — поиск аэропортов по свободному тексту с длинным кэшем.
// Апстрим тот же, что и у поиска рейсов (общий токен и таксономия ошибок).
type Service struct {
	cache  cache.BytesCache
	client flights.Client
	ttl    time.Duration
}

func New(c cache.BytesCache, client flights.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{cache: c, client: client, ttl: ttl}
}

// Search нормализует запрос; короче 2 символов — пустой ответ без
// похода в апстрим и без записи в кэш.
func (s *Service) Search(ctx context.Context, query string) ([]models.Airport, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if len(normalized) < 2 {
		return []models.Airport{}, nil
	}

	key := cacheKey(normalized)
	if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var out []models.Airport
		if json.Unmarshal(b, &out) == nil {
			return out, nil
		}
		// Битую запись просто перезапишем свежими данными.
	} else if err != nil {
		slog.Warn("airport cache get", "query", normalized, "error", err.Error())
	}

	results, err := s.client.SearchLocations(ctx, normalized)
	if err != nil {
		return nil, errors.Wrap(err, "search locations")
	}
	if results == nil {
		results = []models.Airport{}
	}

	if b, err := json.Marshal(results); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			slog.Warn("airport cache set", "query", normalized, "error", err.Error())
		}
	}
	return results, nil
}

func cacheKey(normalized string) string {
	return fmt.Sprintf("airports:%s", normalized)
}
