package amadeushttp

import (
	"regexp"
	"strconv"

	"github.com/BearBump/FareWatch/internal/models"
)

type offersResp struct {
	Data []struct {
		Itineraries []itinerary `json:"itineraries"`
		Price       struct {
			Currency string `json:"currency"`
			Total    string `json:"total"`
		} `json:"price"`
	} `json:"data"`
}

type itinerary struct {
	Duration string `json:"duration"` // ISO 8601, например "PT5H20M"
	Segments []struct {
		Departure   endpoint `json:"departure"`
		Arrival     endpoint `json:"arrival"`
		CarrierCode string   `json:"carrierCode"`
		Number      string   `json:"number"`
	} `json:"segments"`
}

type endpoint struct {
	IATACode string `json:"iataCode"`
	At       string `json:"at"`
}

type locationsResp struct {
	Data []struct {
		IATACode string `json:"iataCode"`
		Name     string `json:"name"`
		Address  struct {
			CityName    string `json:"cityName"`
			CountryCode string `json:"countryCode"`
		} `json:"address"`
	} `json:"data"`
}

// transformOffers нормализует ответ апстрима. Для round trip берём только
// первый itinerary (туда); длительность и пересадки обратного плеча
// не репортятся — известное ограничение, не баг.
func transformOffers(r offersResp) []models.Offer {
	out := make([]models.Offer, 0, len(r.Data))
	for _, o := range r.Data {
		if len(o.Itineraries) == 0 {
			continue
		}
		it := o.Itineraries[0]

		price, err := strconv.ParseFloat(o.Price.Total, 64)
		if err != nil {
			continue
		}

		segs := make([]models.FlightSegment, 0, len(it.Segments))
		for _, s := range it.Segments {
			segs = append(segs, models.FlightSegment{
				From:         s.Departure.IATACode,
				To:           s.Arrival.IATACode,
				DepartAt:     s.Departure.At,
				ArriveAt:     s.Arrival.At,
				Carrier:      s.CarrierCode,
				FlightNumber: s.CarrierCode + s.Number,
			})
		}

		out = append(out, models.Offer{
			Provider:        "amadeus",
			Price:           price,
			Currency:        o.Price.Currency,
			DurationMinutes: parseDuration(it.Duration),
			Stops:           countStops(len(it.Segments)),
			Segments:        segs,
		})
	}
	return out
}

var (
	durationHoursRe   = regexp.MustCompile(`(\d+)H`)
	durationMinutesRe = regexp.MustCompile(`(\d+)M`)
)

// parseDuration: "PT5H20M" -> 320, "PT1H" -> 60, "PT45M" -> 45.
func parseDuration(iso string) int {
	hours := 0
	if m := durationHoursRe.FindStringSubmatch(iso); m != nil {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes := 0
	if m := durationMinutesRe.FindStringSubmatch(iso); m != nil {
		minutes, _ = strconv.Atoi(m[1])
	}
	return hours*60 + minutes
}

func countStops(segments int) int {
	if segments <= 1 {
		return 0
	}
	return segments - 1
}

func transformLocations(r locationsResp) []models.Airport {
	out := make([]models.Airport, 0, len(r.Data))
	for _, l := range r.Data {
		out = append(out, models.Airport{
			Code:    l.IATACode,
			Name:    l.Name,
			City:    l.Address.CityName,
			Country: l.Address.CountryCode,
		})
	}
	return out
}
