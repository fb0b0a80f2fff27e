package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/cors"
	"github.com/solostudio-app/solostudio/backend/internal/ai"
	"github.com/solostudio-app/solostudio/backend/internal/handlers"
	"github.com/solostudio-app/solostudio/backend/internal/middleware"
	"github.com/solostudio-app/solostudio/backend/internal/workers"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := run(defaultDeps()); err != nil {
		log.Fatal(err)
	}
}

// deps holds everything run needs, overridable in tests.
type deps struct {
	getenv         func(string) string
	openDB         func(driverName, dataSourceName string) (*sql.DB, error)
	migrateUp      func(*sql.DB) error
	listenAndServe func(*http.Server) error
	notify         func(chan<- os.Signal, ...os.Signal)
	stopCh         chan os.Signal
}

func defaultDeps() deps {
	return deps{
		getenv:         os.Getenv,
		openDB:         sql.Open,
		migrateUp:      migrateUp,
		listenAndServe: func(srv *http.Server) error { return srv.ListenAndServe() },
		notify:         signal.Notify,
	}
}

func resolvePort(getenv func(string) string) string {
	port := getenv("PORT")
	if port == "" {
		port = "18911"
	}
	return port
}

func parseIntervalFromEnv(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func migrateUp(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("nil database handle")
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("Failed to init migration driver: %w", err)
	}
	migrator, err := migrate.NewWithDatabaseInstance("file://db/migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("Failed to create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("Database migration failed: %w", err)
	}
	return nil
}

func buildRouter(h *handlers.Handler) *mux.Router {
	r := mux.NewRouter()
	handlers.RegisterRoutes(h, r)
	handlers.RegisterBillingRoutes(h, r)
	return r
}

// newGenerator builds the generation client, or returns nil when unconfigured
// (AI endpoints then answer 503).
func newGenerator(getenv func(string) string) ai.Generator {
	apiKey := getenv("AI_API_KEY")
	if apiKey == "" {
		log.Printf("[AI] AI_API_KEY not set; AI endpoints disabled")
		return nil
	}
	c := ai.NewClient(apiKey, getenv("AI_MODEL"))
	if base := getenv("AI_BASE_URL"); base != "" {
		c.BaseURL = base
	}
	return c
}

func startWorkers(ctx context.Context, db *sql.DB, h *handlers.Handler, getenv func(string) string) {
	// Scheduled content publisher
	if enabled := getenv("SCHEDULED_CONTENT_WORKER_ENABLED"); enabled == "" || enabled == "true" {
		interval := parseIntervalFromEnv(getenv, "SCHEDULED_CONTENT_INTERVAL_SECONDS", time.Minute)
		go h.StartScheduledContentWorker(ctx, interval)
	} else {
		log.Printf("[ScheduledContent] disabled via SCHEDULED_CONTENT_WORKER_ENABLED=%q", enabled)
	}

	// Notification and token cleanup
	if enabled := getenv("CLEANUP_WORKER_ENABLED"); enabled == "" || enabled == "true" {
		w := &workers.CleanupWorker{DB: db}
		go w.Start(ctx)
	} else {
		log.Printf("[CleanupWorker] disabled via CLEANUP_WORKER_ENABLED=%q", enabled)
	}
}

func run(d deps) error {
	// Root context for background workers and graceful shutdown
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	databaseURL := ""
	if d.getenv != nil {
		databaseURL = d.getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if d.openDB == nil {
		return fmt.Errorf("openDB dependency is required")
	}
	db, err := d.openDB("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("Failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("Failed to ping database: %w", err)
	}

	if d.migrateUp != nil {
		if err := d.migrateUp(db); err != nil {
			return err
		}
		log.Println("Database is up-to-date")
	}

	h := handlers.New(db, newGenerator(d.getenv))
	r := buildRouter(h)

	// Auth first, then tier limits, then CORS on the outside.
	authn := middleware.NewAuthenticator(d.getenv("JWT_SECRET"))
	enforcer := middleware.NewSubscriptionEnforcer(db)
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := c.Handler(authn.Middleware(enforcer.Middleware(r)))

	port := resolvePort(d.getenv)
	srv := &http.Server{
		Handler:      handler,
		Addr:         ":" + port,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	// Handle graceful shutdown on SIGINT/SIGTERM
	stop := d.stopCh
	if stop == nil {
		stop = make(chan os.Signal, 1)
	}
	if d.notify != nil {
		d.notify(stop, os.Interrupt, syscall.SIGTERM)
	}

	startWorkers(rootCtx, db, h, d.getenv)

	go func() {
		<-stop
		log.Println("Shutting down server...")
		cancel()
		ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", port)
	if err := d.listenAndServe(srv); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Println("Server stopped")
	return nil
}
