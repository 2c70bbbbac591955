package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
	"hermannm.dev/devlog/log"
	"hermannm.dev/summarytable/config"
	"hermannm.dev/summarytable/db"
	"hermannm.dev/summarytable/registry"
	"hermannm.dev/wrap"
)

// Responses smaller than this are not worth compressing.
const compressionMinSize = 512

type SummaryAPI struct {
	registry  *registry.Registry
	summaryDB db.SummaryDB
	sessions  *SessionStore
	validator requestValidator
	router    *chi.Mux
	handler   http.Handler
	config    config.Config
}

func NewSummaryAPI(
	config config.Config,
	fieldRegistry *registry.Registry,
	summaryDB db.SummaryDB,
) (SummaryAPI, error) {
	compress, err := gzhttp.NewWrapper(gzhttp.MinSize(compressionMinSize))
	if err != nil {
		return SummaryAPI{}, wrap.Error(err, "failed to create response compression middleware")
	}

	api := SummaryAPI{
		registry:  fieldRegistry,
		summaryDB: summaryDB,
		sessions:  NewSessionStore(),
		validator: newRequestValidator(),
		router:    chi.NewRouter(),
		config:    config,
	}

	api.router.Use(chimw.RequestID)
	api.router.Use(chimw.Recoverer)
	api.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: config.API.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	api.router.Get("/fields", api.ListFields)
	api.router.Get("/metrics", api.ListMetrics)

	api.router.Post("/sessions", api.CreateSession)
	api.router.Route("/sessions/{sessionID}", func(router chi.Router) {
		router.Get("/", api.GetSession)
		router.Delete("/", api.DeleteSession)
		router.Post("/selections", api.Select)
		router.Post("/resets", api.Reset)
		router.Put("/filters", api.SetFilters)
		router.Get("/download.csv", api.DownloadCSV)
		router.Get("/download.xlsx", api.DownloadXLSX)
	})

	api.handler = compress(api.router)
	return api, nil
}

func (api SummaryAPI) Handler() http.Handler {
	return api.handler
}

// Serves the API until ctx is cancelled, then shuts down gracefully.
func (api SummaryAPI) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", api.config.API.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go api.sessions.ExpireIdle(ctx, api.config.API.SessionIdleTimeout)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("summary API listening", slog.String("address", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down summary API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
