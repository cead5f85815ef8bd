package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civic-gis/gis-cli/internal/schedule"
	"github.com/civic-gis/gis-cli/internal/store"
	"github.com/civic-gis/gis-cli/pkg/geocode"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GIS HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		svc, err := initScheduleService(st)
		if err != nil {
			return err
		}

		srv := &server{store: st, schedule: svc, jobCtx: ctx}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type server struct {
	store    store.Store
	schedule *schedule.Service

	// jobCtx bounds async job work to the server's lifetime rather than the
	// submitting request's.
	jobCtx context.Context
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/schedule", s.handleSchedule)
		r.Post("/split", s.handleSplit)
		r.Get("/jobs/{id}", s.handleGetJob)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr := geocode.AddressInput{
		Street:  q.Get("street"),
		City:    q.Get("city"),
		State:   q.Get("state"),
		ZipCode: q.Get("zip"),
	}
	if addr.Street == "" {
		writeError(w, http.StatusBadRequest, "street is required")
		return
	}

	res, err := s.schedule.Lookup(r.Context(), addr)
	if err != nil {
		zap.L().Error("schedule lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var params splitParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if params.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if params.Tolerance == 0 {
		params.Tolerance = 0.99
	}
	if params.SRID == 0 {
		params.SRID = 4326
	}

	raw, err := json.Marshal(params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode job params")
		return
	}

	job, err := s.store.CreateJob(r.Context(), "split", raw)
	if err != nil {
		zap.L().Error("create split job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}

	go s.runSplitJob(job.ID, params)

	writeJSON(w, http.StatusAccepted, job)
}

// runSplitJob executes a split asynchronously, recording the outcome on the
// job row.
func (s *server) runSplitJob(jobID string, params splitParams) {
	log := zap.L().With(zap.String("job_id", jobID))

	if err := s.store.UpdateJobStatus(s.jobCtx, jobID, store.JobStatusRunning); err != nil {
		log.Error("mark job running failed", zap.Error(err))
		return
	}

	res, err := runSplit(s.jobCtx, params)
	if err != nil {
		log.Warn("split job failed", zap.Error(err))
		if ferr := s.store.FailJob(s.jobCtx, jobID, err.Error()); ferr != nil {
			log.Error("record job failure failed", zap.Error(ferr))
		}
		return
	}

	raw, err := json.Marshal(res)
	if err != nil {
		log.Error("encode job result failed", zap.Error(err))
		return
	}
	if err := s.store.CompleteJob(s.jobCtx, jobID, raw); err != nil {
		log.Error("record job completion failed", zap.Error(err))
		return
	}

	log.Info("split job complete", zap.Float64("ratio", res.Ratio), zap.String("out", res.OutPath))
}

func (s *server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		zap.L().Error("get job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get job failed")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
