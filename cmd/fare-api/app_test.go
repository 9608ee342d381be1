package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/FareWatch/internal/cache/rediscache"
	"github.com/BearBump/FareWatch/internal/integrations/flights/fake"
	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/queue/redisqueue"
	"github.com/BearBump/FareWatch/internal/services/airports"
	"github.com/BearBump/FareWatch/internal/services/alerts"
)

type memRepo struct {
	alerts map[uint64]*models.Alert
	nextID uint64
	notifs map[uint64][]*models.NotificationRecord
}

func newMemRepo() *memRepo {
	return &memRepo{alerts: map[uint64]*models.Alert{}, notifs: map[uint64][]*models.NotificationRecord{}}
}

func (r *memRepo) CreateAlerts(ctx context.Context, items []models.AlertCreateInput) ([]*models.Alert, error) {
	out := make([]*models.Alert, 0, len(items))
	for _, it := range items {
		r.nextID++
		currency := it.Currency
		if currency == "" {
			currency = "USD"
		}
		a := &models.Alert{
			ID: r.nextID, Origin: it.Origin, Destination: it.Destination,
			DepartDate: it.DepartDate, Passengers: it.Passengers,
			TargetPrice: it.TargetPrice, Currency: currency,
			Email: it.Email, Webhook: it.Webhook,
			Status: models.AlertStatusActive,
		}
		r.alerts[a.ID] = a
		out = append(out, a)
	}
	return out, nil
}

func (r *memRepo) GetAlertsByIDs(ctx context.Context, ids []uint64) ([]*models.Alert, error) {
	var out []*models.Alert
	for _, id := range ids {
		if a, ok := r.alerts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateAlertStatus(ctx context.Context, alertID uint64, status string) error {
	a, ok := r.alerts[alertID]
	if !ok {
		return errors.New("alert does not exist")
	}
	a.Status = status
	return nil
}

func (r *memRepo) ListNotifications(ctx context.Context, alertID uint64, limit, offset int) ([]*models.NotificationRecord, error) {
	return r.notifs[alertID], nil
}

func newTestRouter(t *testing.T) (http.Handler, *memRepo, *redisqueue.RedisQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	repo := newMemRepo()
	q := redisqueue.New(mr.Addr())
	svc := alerts.New(repo, rediscache.New(mr.Addr()), q, 10*time.Minute)
	airportsSvc := airports.New(rediscache.New(mr.Addr()), fake.New(), 0)
	return newRouter(svc, airportsSvc, ""), repo, q
}

func TestAPI_CreateAndGetAlert(t *testing.T) {
	r, _, _ := newTestRouter(t)

	depart := time.Now().UTC().AddDate(0, 1, 0).Format("2006-01-02")
	body := `{"items":[{"origin":"LAX","destination":"JFK","departDate":"` + depart + `","passengers":1,"targetPrice":150,"email":"u@example.com"}]}`

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Alerts []*models.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Alerts, 1)
	require.Equal(t, models.AlertStatusActive, created.Alerts[0].Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "LAX", got.Origin)
	require.Equal(t, "JFK", got.Destination)
}

func TestAPI_CreateAlert_Validation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	cases := []string{
		`{not json`,
		`{"items":[{"origin":"LAX","destination":"JFK","departDate":"not-a-date","passengers":1,"targetPrice":150,"email":"u@example.com"}]}`,
		// Ни одного канала доставки.
		`{"items":[{"origin":"LAX","destination":"JFK","departDate":"2030-01-01","passengers":1,"targetPrice":150}]}`,
		`{"items":[]}`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAPI_GetAlert_NotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/999", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ManualCheck(t *testing.T) {
	r, repo, q := newTestRouter(t)
	repo.alerts[7] = &models.Alert{
		ID: 7, Origin: "LAX", Destination: "JFK",
		DepartDate: time.Now().UTC().AddDate(0, 1, 0), Passengers: 1,
		TargetPrice: 150, Currency: "USD", Status: models.AlertStatusActive,
	}
	repo.nextID = 7

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts/7/check", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	st, err := q.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), st.Ready)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alerts/999/check", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_UpdateStatus(t *testing.T) {
	r, repo, _ := newTestRouter(t)
	repo.alerts[7] = &models.Alert{ID: 7, Origin: "LAX", Status: models.AlertStatusActive}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/alerts/7/status", strings.NewReader(`{"status":"PAUSED"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.AlertStatusPaused, repo.alerts[7].Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/alerts/7/status", strings.NewReader(`{"status":"BOGUS"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/alerts/999/status", strings.NewReader(`{"status":"PAUSED"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ListNotifications(t *testing.T) {
	r, repo, _ := newTestRouter(t)
	repo.alerts[7] = &models.Alert{ID: 7, Status: models.AlertStatusTriggered}
	repo.notifs[7] = []*models.NotificationRecord{
		{ID: 1, AlertID: 7, CurrentPrice: 149, Message: "Price dropped", SentAt: time.Now().UTC()},
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts/7/notifications?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Notifications []*models.NotificationRecord `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Notifications, 1)
	require.Equal(t, float64(149), out.Notifications[0].CurrentPrice)
}

func TestAPI_SearchAirports(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/airports?q=los", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Airports []models.Airport `json:"airports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Airports, 1)
	require.Equal(t, "LAX", out.Airports[0].Code)

	// Короткий запрос — пустой список, не ошибка.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/airports?q=l", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Empty(t, out.Airports)
}

func TestAPI_Healthz(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}
