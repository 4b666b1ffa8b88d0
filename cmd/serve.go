package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/discovery"
	"github.com/fundflow/fundflow/internal/model"
	"github.com/fundflow/fundflow/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the discovery API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		// Background alert checker.
		checker := monitoring.NewChecker(e.Collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring).
			WithBreakers(e.Breakers)
		go checker.Run(ctx)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/discover", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Identifier string `json:"identifier"`
				Force      bool   `json:"force"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Identifier == "" {
				writeError(w, http.StatusBadRequest, "identifier is required")
				return
			}

			outcome, err := e.Orchestrator.Discover(req.Context(), body.Identifier, discovery.Options{Force: body.Force})
			if err != nil {
				if eris.Is(err, discovery.ErrNotFound) {
					writeError(w, http.StatusNotFound, "project not found in any source")
					return
				}
				zap.L().Error("api: discovery failed", zap.String("identifier", body.Identifier), zap.Error(err))
				writeError(w, http.StatusBadGateway, "discovery failed")
				return
			}
			writeJSON(w, http.StatusOK, outcome)
		})

		r.Get("/api/projects/{slug}", func(w http.ResponseWriter, req *http.Request) {
			slug := model.Slugify(chi.URLParam(req, "slug"))
			p, staleness, err := e.Store.Lookup(req.Context(), slug, time.Now())
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "index unavailable")
				return
			}
			if p == nil {
				writeError(w, http.StatusNotFound, "project not indexed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"staleness": staleness,
				"project":   p,
			})
		})

		r.Get("/api/projects/{slug}/provenance", func(w http.ResponseWriter, req *http.Request) {
			slug := model.Slugify(chi.URLParam(req, "slug"))
			p, _, err := e.Store.Lookup(req.Context(), slug, time.Now())
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "index unavailable")
				return
			}
			if p == nil {
				writeError(w, http.StatusNotFound, "project not indexed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"slug":   p.Slug,
				"fields": provenanceView(p),
			})
		})

		r.Get("/api/metrics", func(w http.ResponseWriter, req *http.Request) {
			snap, err := e.Collector.Collect(req.Context(), cfg.Monitoring.LookbackEntries)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, "metrics unavailable")
				return
			}
			breakers := map[string]string{}
			for src, state := range e.Breakers.States() {
				breakers[src] = state.String()
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"snapshot": snap,
				"breakers": breakers,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
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
