package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/liamcoop/fairprice/classify"
	"github.com/liamcoop/fairprice/geocode"
	"github.com/liamcoop/fairprice/internal/config"
	"github.com/liamcoop/fairprice/internal/logger"
	"github.com/liamcoop/fairprice/regions"
)

// maxPhotoBytes bounds classify uploads.
const maxPhotoBytes = 10 << 20

// Deps are the collaborators a Server needs. DB and Redis are optional.
type Deps struct {
	Regions    *regions.Manager
	Classifier classify.Classifier
	Geocoder   *geocode.Nominatim
	DB         *sql.DB
	Redis      redis.UniversalClient
	Config     config.Config
}

type Server struct {
	regions    *regions.Manager
	classifier classify.Classifier
	nominatim  *geocode.Nominatim
	db         *sql.DB
	rdb        redis.UniversalClient
	cfg        config.Config
	router     *chi.Mux
}

func NewServer(deps Deps) *Server {
	classifier := deps.Classifier
	if classifier == nil {
		classifier = classify.Unavailable{}
	}
	s := &Server{
		regions:    deps.Regions,
		classifier: classifier,
		nominatim:  deps.Geocoder,
		db:         deps.DB,
		rdb:        deps.Redis,
		cfg:        deps.Config,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	r.Route("/api/v1/regions", func(r chi.Router) {
		r.Get("/", s.handleListRegions)
		r.Post("/", s.handleCreateRegion)

		r.Route("/{regionId}", func(r chi.Router) {
			r.Use(s.regionCtx)

			r.Get("/", s.handleGetRegion)
			r.Delete("/", s.handleDeleteRegion)
			r.Put("/fare", s.handleUpdateFare)
			r.Get("/souks", s.handleSoukMap)

			// Souk items
			r.Get("/items", s.handleListItems)
			r.Post("/items/classify", s.handleClassifyItem)
			r.Post("/items/evaluate", s.handleEvaluateItem)

			// Taxi
			r.Get("/places", s.handleListPlaces)
			r.Get("/geocode", s.handleGeocode)
			r.Post("/trip/click", s.handleTripClick)
			r.Post("/trip/view", s.handleTripView)
			r.Post("/taxi/evaluate", s.handleEvaluateTaxi)

			// Advisory rules
			r.Post("/advisories", s.handleCreateRule)
			r.Get("/advisories", s.handleListRules)
			r.Post("/advisories/evaluate", s.handleEvaluateRules)
			r.Get("/advisories/{ruleId}", s.handleGetRule)
			r.Put("/advisories/{ruleId}", s.handleUpdateRule)
			r.Delete("/advisories/{ruleId}", s.handleDeleteRule)
			r.Post("/advisories/{ruleId}/evaluate", s.handleEvaluateRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// geocoder returns the search client of a region, behind the Redis cache
// when one is configured.
func (s *Server) geocoder(region *regions.Region) geocode.Geocoder {
	var g geocode.Geocoder = s.nominatim.WithBias(region.Profile.Geocoder)
	if s.rdb != nil {
		g = geocode.NewCached(s.rdb, g, region.Profile.ID, s.cfg.GeocodeCacheTTL)
	}
	return g
}

func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// regionSource picks Postgres when a database is configured, seeding it with
// the built-in regions on first start, then a YAML file, then the built-ins.
func regionSource(ctx context.Context, cfg config.Config, db *sql.DB) (regions.Source, error) {
	switch {
	case db != nil:
		src := regions.NewPostgresSource(db)
		defs, err := regions.DefaultDefinitions()
		if err != nil {
			return nil, err
		}
		seeded, err := src.Seed(ctx, defs)
		if err != nil {
			return nil, fmt.Errorf("failed to seed regions: %w", err)
		}
		if seeded {
			logger.Info("seeded default regions", "count", len(defs))
		}
		return src, nil
	case cfg.RegionsFile != "":
		return regions.NewFileSource(cfg.RegionsFile)
	default:
		return regions.NewDefaultSource()
	}
}

func newClassifier(cfg config.Config) (classify.Classifier, error) {
	if cfg.ClassifierURL == "" {
		logger.Warn("CLASSIFIER_URL not set, items will be chosen manually")
		return classify.Unavailable{}, nil
	}
	labels, err := classify.LoadLabels(cfg.ClassifierLabels)
	if err != nil {
		return nil, err
	}
	return classify.NewModelClient(nil, cfg.ClassifierURL, cfg.ClassifierModel, labels)
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps := Deps{Config: cfg}

	if cfg.DatabaseURL != "" {
		db, err := openDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.DB = db
	}

	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			// the cache is optional; searches go straight to the provider
			logger.Warn("geocode cache disabled", "error", err)
		} else {
			defer rdb.Close()
			deps.Redis = rdb
		}
	}

	source, err := regionSource(ctx, cfg, deps.DB)
	if err != nil {
		return err
	}
	manager, err := regions.NewManager(source)
	if err != nil {
		return err
	}
	if err := manager.LoadAll(ctx); err != nil {
		return err
	}
	deps.Regions = manager

	deps.Classifier, err = newClassifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up classifier: %w", err)
	}
	deps.Geocoder = geocode.NewNominatim(nil, cfg.GeocoderURL, cfg.GeocoderUserAgent)

	server := NewServer(deps)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      c.Handler(server),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr, "regions", len(manager.List()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigChan:
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		logger.Error("log exporter shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	if err := run(cfg); err != nil {
		logger.Fatal("server exited", "error", err)
	}
}
