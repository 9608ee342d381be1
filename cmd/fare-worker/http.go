package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/BearBump/FareWatch/config"
	"github.com/BearBump/FareWatch/internal/queue/redisqueue"
	"github.com/BearBump/FareWatch/internal/services/alerts"
	"github.com/BearBump/FareWatch/internal/services/pricecheck"
	"github.com/BearBump/FareWatch/internal/services/scheduler"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	sched     *scheduler.Scheduler
	worker    *pricecheck.Worker
	queue     *redisqueue.RedisQueue
	alertsSvc *alerts.Service
	cfg       *config.Config
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		out := map[string]any{}
		if opts.sched != nil {
			out["scheduler"] = opts.sched.Stats()
		}
		if opts.worker != nil {
			out["worker"] = opts.worker.Stats()
		}
		if opts.queue != nil {
			qs, err := opts.queue.Stats(r.Context())
			if err != nil {
				out["queueError"] = err.Error()
			} else {
				out["queue"] = qs
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Avoid dumping secrets; show only operational worker settings.
		fw := opts.cfg.FareWatch
		out := map[string]any{
			"schedulerIntervalSeconds":  fw.SchedulerIntervalSeconds,
			"schedulerFreshnessSeconds": fw.SchedulerFreshnessSeconds,
			"schedulerBatchSize":        fw.SchedulerBatchSize,
			"concurrency":               fw.WorkerConcurrency,
			"pollIntervalSeconds":       fw.WorkerPollIntervalSeconds,
			"leaseSeconds":              fw.WorkerLeaseSeconds,
			"maxAttempts":               fw.WorkerMaxAttempts,
			"rateLimitPerMinute":        fw.WorkerRateLimitPerMinute,
			"singleFlight":              fw.WorkerSingleFlight,
			"providerMode":              fw.ProviderMode,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.sched == nil {
			_, _ = w.Write([]byte(`{"error":"scheduler not wired"}`))
			return
		}
		opts.sched.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	// Ручная постановка проверки одного алерта в очередь, вне расписания.
	r.Post("/alerts/{id}/check", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.alertsSvc == nil {
			_, _ = w.Write([]byte(`{"error":"alerts service not wired"}`))
			return
		}
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid alert id"}`))
			return
		}
		if err := opts.alertsSvc.ManualCheck(r.Context(), id); err != nil {
			if err == alerts.ErrNotFound {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"alert not found"}`))
				return
			}
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		_, _ = w.Write([]byte(`{"enqueued":true}`))
	})

	// Swagger подключается только если файл задан и существует.
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); err == nil {
			r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Cache-Control", "no-store")
				http.ServeFile(w, r, opts.swaggerPath)
			})

			swaggerURL := "/swagger.json"
			if fi, err := os.Stat(opts.swaggerPath); err == nil {
				swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
			}
			r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
		}
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
