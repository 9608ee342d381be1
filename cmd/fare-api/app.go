package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/BearBump/FareWatch/internal/broker/messages"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/models"
	"github.com/BearBump/FareWatch/internal/services/airports"
	"github.com/BearBump/FareWatch/internal/services/alerts"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type fareAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, m messages.AlertChecked) error) error
}

func runFareAPI(ctx context.Context, opts fareAPIOpts, svc *alerts.Service, airportsSvc *airports.Service, consumer kafkaConsumer) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			_ = consumer.Consume(ctx, func(ctx context.Context, m messages.AlertChecked) error {
				return svc.ApplyCheckedEvent(ctx, m)
			})
		}()
	}

	r := newRouter(svc, airportsSvc, opts.swaggerPath)

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

func newRouter(svc *alerts.Service, airportsSvc *airports.Service, swaggerPath string) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Post("/alerts", handleCreateAlerts(svc))
	r.Get("/alerts/{id}", handleGetAlert(svc))
	r.Patch("/alerts/{id}/status", handleUpdateStatus(svc))
	r.Get("/alerts/{id}/notifications", handleListNotifications(svc))
	r.Post("/alerts/{id}/check", handleManualCheck(svc))
	r.Get("/airports", handleSearchAirports(airportsSvc))

	if swaggerPath != "" {
		if _, err := os.Stat(swaggerPath); err == nil {
			r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Cache-Control", "no-store")
				http.ServeFile(w, r, swaggerPath)
			})
			r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
		}
	}

	return r
}

// createAlertRequest — wire-форма: дата вылета строкой YYYY-MM-DD.
type createAlertRequest struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DepartDate  string  `json:"departDate"`
	Passengers  int     `json:"passengers"`
	TargetPrice float64 `json:"targetPrice"`
	Currency    string  `json:"currency"`
	Email       *string `json:"email,omitempty"`
	Webhook     *string `json:"webhook,omitempty"`
}

type createAlertsRequest struct {
	Items []createAlertRequest `json:"items"`
}

func handleCreateAlerts(svc *alerts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAlertsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		items := make([]models.AlertCreateInput, 0, len(req.Items))
		for i, it := range req.Items {
			departDate, err := flights.ParseDepartDate(it.DepartDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("items[%d]: invalid departDate, want YYYY-MM-DD", i))
				return
			}
			passengers := it.Passengers
			if passengers == 0 {
				passengers = 1
			}
			items = append(items, models.AlertCreateInput{
				Origin:      it.Origin,
				Destination: it.Destination,
				DepartDate:  departDate,
				Passengers:  passengers,
				TargetPrice: it.TargetPrice,
				Currency:    it.Currency,
				Email:       it.Email,
				Webhook:     it.Webhook,
			})
		}

		created, err := svc.CreateAlerts(r.Context(), items)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"alerts": created})
	}
}

func handleGetAlert(svc *alerts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := alertID(w, r)
		if !ok {
			return
		}
		a, err := svc.GetAlert(r.Context(), id)
		if err != nil {
			if errors.Is(err, alerts.ErrNotFound) {
				writeError(w, http.StatusNotFound, "alert not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleUpdateStatus(svc *alerts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := alertID(w, r)
		if !ok {
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := svc.UpdateStatus(r.Context(), id, req.Status); err != nil {
			if errors.Is(err, alerts.ErrNotFound) {
				writeError(w, http.StatusNotFound, "alert not found")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
	}
}

func handleListNotifications(svc *alerts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := alertID(w, r)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		ns, err := svc.ListNotifications(r.Context(), id, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ns == nil {
			ns = []*models.NotificationRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": ns})
	}
}

func handleManualCheck(svc *alerts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := alertID(w, r)
		if !ok {
			return
		}
		if err := svc.ManualCheck(r.Context(), id); err != nil {
			if errors.Is(err, alerts.ErrNotFound) {
				writeError(w, http.StatusNotFound, "alert not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"enqueued": true})
	}
}

func handleSearchAirports(svc *airports.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := svc.Search(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			switch {
			case errors.Is(err, flights.ErrBadRequest):
				writeError(w, http.StatusBadRequest, "invalid query")
			case errors.Is(err, flights.ErrRateLimited):
				writeError(w, http.StatusTooManyRequests, "rate limited, retry later")
			default:
				writeError(w, http.StatusServiceUnavailable, "airport search temporarily unavailable")
			}
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"airports": results})
	}
}

func alertID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid alert id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
