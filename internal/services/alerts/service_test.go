package alerts

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/BearBump/FareWatch/internal/broker/messages"
	"github.com/BearBump/FareWatch/internal/cache/rediscache"
	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/queue"
)

type fakeRepo struct {
	alerts map[uint64]*models.Alert
	notifs []*models.NotificationRecord

	getCalls int
}

func newFakeRepo(alerts ...*models.Alert) *fakeRepo {
	m := make(map[uint64]*models.Alert, len(alerts))
	for _, a := range alerts {
		m[a.ID] = a
	}
	return &fakeRepo{alerts: m}
}

func (r *fakeRepo) CreateAlerts(ctx context.Context, items []models.AlertCreateInput) ([]*models.Alert, error) {
	out := make([]*models.Alert, 0, len(items))
	for i, it := range items {
		a := &models.Alert{
			ID:          uint64(i + 1),
			Origin:      it.Origin,
			Destination: it.Destination,
			DepartDate:  it.DepartDate,
			Passengers:  it.Passengers,
			TargetPrice: it.TargetPrice,
			Currency:    it.Currency,
			Email:       it.Email,
			Webhook:     it.Webhook,
			Status:      models.AlertStatusActive,
		}
		r.alerts[a.ID] = a
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeRepo) GetAlertsByIDs(ctx context.Context, ids []uint64) ([]*models.Alert, error) {
	r.getCalls++
	var out []*models.Alert
	for _, id := range ids {
		if a, ok := r.alerts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) UpdateAlertStatus(ctx context.Context, alertID uint64, status string) error {
	a, ok := r.alerts[alertID]
	if !ok {
		return errors.New("alert does not exist")
	}
	a.Status = status
	return nil
}

func (r *fakeRepo) ListNotifications(ctx context.Context, alertID uint64, limit, offset int) ([]*models.NotificationRecord, error) {
	return r.notifs, nil
}

type captureQueue struct {
	jobs []queue.Job
}

func (q *captureQueue) Enqueue(ctx context.Context, j queue.Job) error {
	q.jobs = append(q.jobs, j)
	return nil
}
func (q *captureQueue) Dequeue(ctx context.Context, now time.Time, lease time.Duration) (*queue.Job, error) {
	return nil, nil
}
func (q *captureQueue) Ack(ctx context.Context, id string) error { return nil }
func (q *captureQueue) Retry(ctx context.Context, j queue.Job, cause error) (bool, error) {
	return false, nil
}

func strPtr(s string) *string { return &s }

func validInput() models.AlertCreateInput {
	return models.AlertCreateInput{
		Origin:      "LAX",
		Destination: "JFK",
		DepartDate:  time.Now().UTC().AddDate(0, 1, 0),
		Passengers:  1,
		TargetPrice: 150,
		Currency:    "USD",
		Email:       strPtr("u@example.com"),
	}
}

func newTestService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis, *captureQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	q := &captureQueue{}
	return New(repo, rediscache.New(mr.Addr()), q, 10*time.Minute), mr, q
}

func TestService_CreateAlerts(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeRepo())

	created, err := svc.CreateAlerts(context.Background(), []models.AlertCreateInput{validInput()})
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, models.AlertStatusActive, created[0].Status)
}

func TestService_CreateAlerts_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeRepo())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*models.AlertCreateInput)
	}{
		{"empty origin", func(in *models.AlertCreateInput) { in.Origin = "" }},
		{"empty destination", func(in *models.AlertCreateInput) { in.Destination = "" }},
		{"zero passengers", func(in *models.AlertCreateInput) { in.Passengers = 0 }},
		{"zero target price", func(in *models.AlertCreateInput) { in.TargetPrice = 0 }},
		{"negative target price", func(in *models.AlertCreateInput) { in.TargetPrice = -10 }},
		{"past depart date", func(in *models.AlertCreateInput) { in.DepartDate = time.Now().UTC().AddDate(0, 0, -1) }},
		{"no channels", func(in *models.AlertCreateInput) { in.Email = nil; in.Webhook = nil }},
		{"empty channels", func(in *models.AlertCreateInput) { in.Email = strPtr(""); in.Webhook = strPtr("") }},
	}
	for _, tc := range cases {
		in := validInput()
		tc.mutate(&in)
		_, err := svc.CreateAlerts(ctx, []models.AlertCreateInput{in})
		require.Error(t, err, tc.name)
	}

	_, err := svc.CreateAlerts(ctx, nil)
	require.Error(t, err)
}

func TestService_GetAlert_CachesCurrentState(t *testing.T) {
	repo := newFakeRepo(&models.Alert{ID: 7, Origin: "LAX", Destination: "JFK", Status: models.AlertStatusActive})
	svc, mr, _ := newTestService(t, repo)
	ctx := context.Background()

	a, err := svc.GetAlert(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, uint64(7), a.ID)
	require.Equal(t, 1, repo.getCalls)
	require.True(t, mr.Exists("alert:7:current"))

	// Второй запрос обслуживается из кэша.
	a, err = svc.GetAlert(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "JFK", a.Destination)
	require.Equal(t, 1, repo.getCalls)
}

func TestService_GetAlert_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeRepo())
	_, err := svc.GetAlert(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestService_GetAlertsByIDs_PreservesOrder(t *testing.T) {
	repo := newFakeRepo(
		&models.Alert{ID: 1, Origin: "LAX"},
		&models.Alert{ID: 2, Origin: "SFO"},
		&models.Alert{ID: 3, Origin: "SEA"},
	)
	svc, _, _ := newTestService(t, repo)

	out, err := svc.GetAlertsByIDs(context.Background(), []uint64{3, 1, 2})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, uint64(3), out[0].ID)
	require.Equal(t, uint64(1), out[1].ID)
	require.Equal(t, uint64(2), out[2].ID)
}

func TestService_ManualCheck_SingleAttemptBudget(t *testing.T) {
	repo := newFakeRepo(&models.Alert{
		ID: 7, Origin: "LAX", Destination: "JFK",
		DepartDate:  time.Now().UTC().AddDate(0, 1, 0),
		TargetPrice: 150, Status: models.AlertStatusActive,
	})
	svc, _, q := newTestService(t, repo)

	require.NoError(t, svc.ManualCheck(context.Background(), 7))
	require.Len(t, q.jobs, 1)
	require.Equal(t, uint64(7), q.jobs[0].AlertID)
	// Ручная проверка — без ретраев.
	require.Equal(t, 1, q.jobs[0].MaxAttempts)
}

func TestService_ManualCheck_NotFound(t *testing.T) {
	svc, _, q := newTestService(t, newFakeRepo())
	err := svc.ManualCheck(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, q.jobs)
}

func TestService_ApplyCheckedEvent_RefreshesCache(t *testing.T) {
	a := &models.Alert{ID: 7, Origin: "LAX", Destination: "JFK", Status: models.AlertStatusActive}
	repo := newFakeRepo(a)
	svc, mr, _ := newTestService(t, repo)
	ctx := context.Background()

	// Прогреваем кэш старым состоянием.
	_, err := svc.GetAlert(ctx, 7)
	require.NoError(t, err)

	// Воркер записал TRIGGERED в БД; событие освежает кэш.
	a.Status = models.AlertStatusTriggered
	require.NoError(t, svc.ApplyCheckedEvent(ctx, messages.AlertChecked{
		AlertID: 7, Outcome: messages.CheckOutcomeTriggered,
	}))

	got, err := svc.GetAlert(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusTriggered, got.Status)
	require.True(t, mr.Exists("alert:7:current"))
}

func TestService_UpdateStatus(t *testing.T) {
	a := &models.Alert{ID: 7, Origin: "LAX", Status: models.AlertStatusActive}
	repo := newFakeRepo(a)
	svc, mr, _ := newTestService(t, repo)
	ctx := context.Background()

	// Прогрев кэша, чтобы проверить инвалидацию.
	_, err := svc.GetAlert(ctx, 7)
	require.NoError(t, err)
	require.True(t, mr.Exists("alert:7:current"))

	require.NoError(t, svc.UpdateStatus(ctx, 7, models.AlertStatusPaused))
	require.Equal(t, models.AlertStatusPaused, a.Status)
	require.False(t, mr.Exists("alert:7:current"))

	require.NoError(t, svc.UpdateStatus(ctx, 7, models.AlertStatusActive))
	require.Equal(t, models.AlertStatusActive, a.Status)
}

func TestService_UpdateStatus_Invalid(t *testing.T) {
	active := &models.Alert{ID: 1, Status: models.AlertStatusActive}
	triggered := &models.Alert{ID: 2, Status: models.AlertStatusTriggered}
	svc, _, _ := newTestService(t, newFakeRepo(active, triggered))
	ctx := context.Background()

	// TRIGGERED нельзя выставить руками, из него нельзя выйти.
	require.Error(t, svc.UpdateStatus(ctx, 1, models.AlertStatusTriggered))
	require.Error(t, svc.UpdateStatus(ctx, 2, models.AlertStatusActive))
	require.Error(t, svc.UpdateStatus(ctx, 1, "BOGUS"))
	require.ErrorIs(t, svc.UpdateStatus(ctx, 404, models.AlertStatusPaused), ErrNotFound)
}

func TestService_ApplyCheckedEvent_MissingID(t *testing.T) {
	svc, _, _ := newTestService(t, newFakeRepo())
	require.Error(t, svc.ApplyCheckedEvent(context.Background(), messages.AlertChecked{}))
}
