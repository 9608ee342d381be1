package airports

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/FareWatch/internal/cache/rediscache"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
)

type fakeClient struct {
	locations []models.Airport
	err       error
	calls     int
}

func (f *fakeClient) SearchOffers(ctx context.Context, c flights.SearchCriteria) ([]models.Offer, error) {
	panic("not used")
}

func (f *fakeClient) SearchLocations(ctx context.Context, keyword string) ([]models.Airport, error) {
	f.calls++
	return f.locations, f.err
}

func TestAirports_ShortQuerySkipsUpstream(t *testing.T) {
	mr := miniredis.RunT(t)
	fc := &fakeClient{}
	s := New(rediscache.New(mr.Addr()), fc, 0)

	ctx := context.Background()
	for _, q := range []string{"", "a", " l ", "  "} {
		out, err := s.Search(ctx, q)
		require.NoError(t, err)
		require.Empty(t, out)
	}
	require.Zero(t, fc.calls)
	require.Empty(t, mr.Keys())
}

func TestAirports_CachesResults(t *testing.T) {
	mr := miniredis.RunT(t)
	fc := &fakeClient{locations: []models.Airport{
		{Code: "LHR", Name: "Heathrow", City: "London", Country: "GB"},
	}}
	s := New(rediscache.New(mr.Addr()), fc, 0)

	ctx := context.Background()
	out, err := s.Search(ctx, "London")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 1, fc.calls)

	// Повтор (с другим регистром) — из кэша, апстрим не дёргаем.
	out, err = s.Search(ctx, "  LONDON ")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "LHR", out[0].Code)
	require.Equal(t, 1, fc.calls)

	require.Equal(t, DefaultTTL, mr.TTL("airports:london"))
}

func TestAirports_EmptyUpstreamCachedAsEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	fc := &fakeClient{locations: nil}
	s := New(rediscache.New(mr.Addr()), fc, time.Hour)

	out, err := s.Search(context.Background(), "nowhere")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)
	require.Equal(t, time.Hour, mr.TTL("airports:nowhere"))
}

func TestAirports_UpstreamError(t *testing.T) {
	mr := miniredis.RunT(t)
	fc := &fakeClient{err: errors.Wrap(flights.ErrUnavailable, "http 503")}
	s := New(rediscache.New(mr.Addr()), fc, 0)

	_, err := s.Search(context.Background(), "london")
	require.ErrorIs(t, err, flights.ErrUnavailable)
	require.False(t, mr.Exists("airports:london"))
}
