package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/uhi-cli/internal/config"
	"github.com/sells-group/uhi-cli/internal/model"
	"github.com/sells-group/uhi-cli/internal/pipeline"
	"github.com/sells-group/uhi-cli/internal/raster"
	"github.com/sells-group/uhi-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for launching and inspecting runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		a := &api{
			store: st,
			launch: func(req runRequest) {
				// Each launch gets its own config copy so concurrent runs
				// cannot see each other's overrides.
				runCfg := *cfg
				req.apply(&runCfg.Analysis)

				boundary, err := initBoundary()
				if err != nil {
					zap.L().Error("launch failed", zap.Error(err))
					return
				}
				landcover, thermal, closeCatalogs, err := initCatalogs(ctx)
				if err != nil {
					zap.L().Error("launch failed", zap.Error(err))
					return
				}
				defer closeCatalogs()

				p := pipeline.New(&runCfg, st, boundary, landcover, thermal, initSink())
				if result, err := p.Run(ctx); err != nil {
					zap.L().Error("run failed", zap.Error(err))
				} else {
					zap.L().Info("run complete",
						zap.Strings("region", result.Region),
						zap.Float64("mean_kelvin", result.MeanKelvin),
					)
				}
			},
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(a),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background()) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runRequest is the POST /api/runs body. Absent fields keep the configured
// defaults.
type runRequest struct {
	Lng       *float64 `json:"lng,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
}

func (r runRequest) apply(a *config.AnalysisConfig) {
	if r.Lng != nil {
		a.CenterLng = *r.Lng
	}
	if r.Lat != nil {
		a.CenterLat = *r.Lat
	}
	if r.StartDate != "" {
		a.StartDate = r.StartDate
	}
	if r.EndDate != "" {
		a.EndDate = r.EndDate
	}
}

// api holds the server dependencies. launch starts an analysis run in the
// background; tests stub it out.
type api struct {
	store  store.Store
	launch func(req runRequest)
}

// newRouter builds the HTTP routes.
func newRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", a.handleHealth)
	r.Get("/api/legend", a.handleLegend)
	r.Get("/api/runs", a.handleListRuns)
	r.Get("/api/runs/{id}", a.handleGetRun)
	r.Post("/api/runs", a.handleCreateRun)

	return r
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleLegend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, raster.DefaultLegend())
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Limit:  50,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := a.store.GetRun(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		zap.L().Error("get run failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *api) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	go a.launch(req)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
