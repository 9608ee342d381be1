package flights

import (
	"context"
	"errors"
	"time"

	"github.com/BearBump/FareWatch/internal/models"
)

// Классификация ошибок провайдера. Ретраями занимается очередь,
// клиент сам ничего не повторяет.
var (
	ErrBadRequest  = errors.New("flights: malformed search request")
	ErrAuth        = errors.New("flights: authentication rejected")
	ErrRateLimited = errors.New("flights: rate limited by upstream")
	ErrUnavailable = errors.New("flights: upstream unavailable")
)

type SearchCriteria struct {
	Origin      string
	Destination string
	DepartDate  string // YYYY-MM-DD
	ReturnDate  string // опционально, round trip
	Passengers  int
}

type Client interface {
	SearchOffers(ctx context.Context, c SearchCriteria) ([]models.Offer, error)
	SearchLocations(ctx context.Context, keyword string) ([]models.Airport, error)
}

// ParseDepartDate — для снапшотов джоб, где дата заморожена строкой.
func ParseDepartDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
