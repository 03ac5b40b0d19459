package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/monitoring"
	"github.com/sells-group/address-resolver/internal/resilience"
	"github.com/sells-group/address-resolver/internal/store"
)

var servePort int

// resolver is the part of the pipeline the HTTP API needs.
type resolver interface {
	Resolve(ctx context.Context, in model.Input) (*model.ResolutionRecord, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for resolution requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildMux(env.Pipeline, env.Store, env.Breakers),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// resolveRequest is the POST /resolve body.
type resolveRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	City       string `json:"city"`
	State      string `json:"state"`
	Employment string `json:"employment"`
	Education  string `json:"education"`
}

func (r resolveRequest) input() model.Input {
	q := model.NewPersonQuery(r.FirstName, r.LastName, r.City, r.State)
	return model.Input{
		Query: q,
		Profile: model.PersonProfile{
			Employment: r.Employment,
			Education:  r.Education,
			City:       q.City,
			State:      q.State,
		},
	}
}

// healthResponse is the GET /health body. Status is "degraded" while any
// breaker is open.
type healthResponse struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

func health(br *resilience.Breakers) healthResponse {
	h := healthResponse{Status: "ok"}
	if br == nil {
		return h
	}
	for name, state := range br.States() {
		if h.Breakers == nil {
			h.Breakers = make(map[string]string)
		}
		h.Breakers[name] = state.String()
		if state == resilience.CircuitOpen {
			h.Status = "degraded"
		}
	}
	return h
}

// buildMux wires the API routes. A nil res or st disables the routes that
// need it.
func buildMux(res resolver, st store.Store, br *resilience.Breakers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, health(br))
	})

	r.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
		var body resolveRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		in := body.input()
		if !in.Query.HasName() {
			writeError(w, http.StatusBadRequest, "first_name and last_name are required")
			return
		}
		if res == nil {
			writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
			return
		}

		rec, err := res.Resolve(req.Context(), in)
		if err != nil {
			zap.L().Error("resolve request failed",
				zap.String("query", in.Query.String()),
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "resolve failed")
			return
		}
		writeJSON(w, http.StatusOK, recordView{ResolutionRecord: rec, Export: rec.ToExport()})
	})

	r.Get("/records", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}
		filter := store.RecordFilter{Status: model.Status(req.URL.Query().Get("status"))}
		if filter.Status != "" && !filter.Status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Limit, _ = strconv.Atoi(req.URL.Query().Get("limit"))
		filter.Offset, _ = strconv.Atoi(req.URL.Query().Get("offset"))

		recs, err := st.ListRecords(req.Context(), filter)
		if err != nil {
			zap.L().Error("list records failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list records failed")
			return
		}
		if recs == nil {
			recs = []model.ResolutionRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	})

	r.Get("/records/{key}", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}
		rec, err := st.GetRecord(req.Context(), chi.URLParam(req, "key"))
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "record not found")
			return
		case err != nil:
			zap.L().Error("get record failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get record failed")
			return
		}
		writeJSON(w, http.StatusOK, recordView{ResolutionRecord: rec, Export: rec.ToExport()})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		if st == nil {
			writeError(w, http.StatusServiceUnavailable, "store not configured")
			return
		}
		counts, err := st.CountByStatus(req.Context())
		if err != nil {
			zap.L().Error("count records failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "count records failed")
			return
		}
		writeJSON(w, http.StatusOK, counts)
	})

	return r
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
