package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"aqi-service/aqi"
	"aqi-service/datasource"
	"aqi-service/store"
)

// Options configures the API server
type Options struct {
	Port           int
	AllowedOrigins []string
	DefaultModel   string
	HistoryDays    int
	ChartWidth     int
	ChartHeight    int
	// Now overrides the clock used to date forecasts
	Now func() time.Time
}

// Server represents the API server
type Server struct {
	store    store.Store
	source   datasource.Source
	opts     Options
	composer aqi.Composer
	views    *ViewRegistry
	router   chi.Router
	server   *http.Server
}

// NewServer creates a new API server. source may be nil, in which case
// endpoints that need the model service answer 503.
func NewServer(st store.Store, source datasource.Source, opts Options) *Server {
	if opts.DefaultModel == "" {
		opts.DefaultModel = "balanced"
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 30
	}
	if opts.ChartWidth <= 0 {
		opts.ChartWidth = 900
	}
	if opts.ChartHeight <= 0 {
		opts.ChartHeight = 380
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		store:    st,
		source:   source,
		opts:     opts,
		composer: aqi.Composer{Now: opts.Now},
		views:    NewViewRegistry(opts.ChartWidth, opts.ChartHeight),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealthCheck)
		r.Get("/categories", s.handleCategories)
		r.Get("/counties", s.handleCounties)

		r.Route("/aqi", func(r chi.Router) {
			r.Get("/historical", s.handleHistorical)
			r.Post("/predict", s.handlePredict)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/chart", s.handleChart)
			r.Get("/chart.png", s.handleChartImage)
			r.Get("/predictions/log", s.handlePredictionLog)
		})

		r.Get("/model/metrics", s.handleModelMetrics)
		r.Post("/tooltip/place", s.handleTooltipPlace)
	})

	return r
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins the API server
func (s *Server) Start() error {
	zap.L().Info("starting API server",
		zap.String("operation", "startup"),
		zap.String("addr", s.server.Addr),
	)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
