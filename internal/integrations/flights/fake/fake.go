package fake

import (
	"context"
	"strings"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
)

// FakeClient — детерминированный провайдер для разработки и демо:
// всегда два оффера, прямой за 199 и с одной пересадкой за 149.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) SearchOffers(ctx context.Context, c flights.SearchCriteria) ([]models.Offer, error) {
	day := c.DepartDate
	if day == "" {
		day = "2026-02-01"
	}
	return []models.Offer{
		{
			Provider:        "fake",
			Price:           199,
			Currency:        "USD",
			DurationMinutes: 320,
			Stops:           0,
			Segments: []models.FlightSegment{
				{
					From:         c.Origin,
					To:           c.Destination,
					DepartAt:     day + "T08:00:00Z",
					ArriveAt:     day + "T13:20:00Z",
					Carrier:      "MO",
					FlightNumber: "MO123",
				},
			},
		},
		{
			Provider:        "fake",
			Price:           149,
			Currency:        "USD",
			DurationMinutes: 450,
			Stops:           1,
			Segments: []models.FlightSegment{
				{
					From:         c.Origin,
					To:           "DEN",
					DepartAt:     day + "T07:30:00Z",
					ArriveAt:     day + "T10:30:00Z",
					Carrier:      "MO",
					FlightNumber: "MO88",
				},
				{
					From:         "DEN",
					To:           c.Destination,
					DepartAt:     day + "T11:30:00Z",
					ArriveAt:     day + "T15:00:00Z",
					Carrier:      "MO",
					FlightNumber: "MO90",
				},
			},
		},
	}, nil
}

var fakeAirports = []models.Airport{
	{Code: "LAX", Name: "Los Angeles International", City: "Los Angeles", Country: "US"},
	{Code: "JFK", Name: "John F. Kennedy International", City: "New York", Country: "US"},
	{Code: "LHR", Name: "Heathrow", City: "London", Country: "GB"},
	{Code: "DEN", Name: "Denver International", City: "Denver", Country: "US"},
}

func (f *FakeClient) SearchLocations(ctx context.Context, keyword string) ([]models.Airport, error) {
	kw := strings.ToLower(keyword)
	var out []models.Airport
	for _, a := range fakeAirports {
		if strings.Contains(strings.ToLower(a.Code), kw) ||
			strings.Contains(strings.ToLower(a.City), kw) ||
			strings.Contains(strings.ToLower(a.Name), kw) {
			out = append(out, a)
		}
	}
	return out, nil
}
