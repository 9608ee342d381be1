package amadeushttp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
	"github.com/pkg/errors"
)

// TokenSource — обычно tokencache.Cache.
type TokenSource interface {
	Get(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Client — живой провайдер поверх Amadeus-подобного API.
// Ошибки классифицируются, но не ретраятся: повторами управляет очередь.
type Client struct {
	baseURL string
	tokens  TokenSource
	httpc   *http.Client
}

func New(baseURL string, tokens TokenSource) *Client {
	if baseURL == "" {
		baseURL = "https://test.api.amadeus.com"
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) SearchOffers(ctx context.Context, sc flights.SearchCriteria) ([]models.Offer, error) {
	q := url.Values{}
	q.Set("originLocationCode", sc.Origin)
	q.Set("destinationLocationCode", sc.Destination)
	q.Set("departureDate", sc.DepartDate)
	q.Set("adults", strconv.Itoa(sc.Passengers))
	q.Set("currencyCode", "USD")
	q.Set("max", "50")
	q.Set("nonStop", "false")
	if sc.ReturnDate != "" {
		q.Set("returnDate", sc.ReturnDate)
	}

	var r offersResp
	if err := c.getJSON(ctx, "/v2/shopping/flight-offers", q, &r); err != nil {
		return nil, err
	}

	offers := transformOffers(r)
	slog.Debug("flight offers search",
		"origin", sc.Origin, "destination", sc.Destination, "offers", len(offers))
	return offers, nil
}

func (c *Client) SearchLocations(ctx context.Context, keyword string) ([]models.Airport, error) {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("subType", "AIRPORT,CITY")
	q.Set("page[limit]", "10")

	var r locationsResp
	if err := c.getJSON(ctx, "/v1/reference-data/locations", q, &r); err != nil {
		// Для lookup 401 — временная беда (токен уже сброшен): наружу
		// уходит retryable unavailable, а не auth-ошибка.
		if stderrors.Is(err, flights.ErrAuth) {
			return nil, errors.Wrap(flights.ErrUnavailable, "authentication rejected")
		}
		return nil, err
	}
	return transformLocations(r), nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "get token")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(flights.ErrUnavailable, "do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return c.classify(ctx, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

// classify переводит статусы апстрима в таксономию flights.Err*.
// 401 дополнительно сбрасывает кэшированный токен; повторный запрос
// возьмёт свежий — но инициирует его очередь, не клиент.
func (c *Client) classify(ctx context.Context, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return errors.Wrapf(flights.ErrBadRequest, "http 400: %s", body)
	case resp.StatusCode == http.StatusUnauthorized:
		if err := c.tokens.Invalidate(ctx); err != nil {
			slog.Warn("invalidate token after 401", "error", err.Error())
		}
		return errors.Wrap(flights.ErrAuth, "http 401")
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.Wrap(flights.ErrRateLimited, "http 429")
	case resp.StatusCode/100 == 5:
		return errors.Wrapf(flights.ErrUnavailable, "http %d", resp.StatusCode)
	default:
		return fmt.Errorf("amadeus api http %d: %s", resp.StatusCode, body)
	}
}
