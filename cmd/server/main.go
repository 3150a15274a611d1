/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the compliance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags (environment variables as fallback)
  2. Initialize SQLite store
  3. Wire service, sweeper, metrics, and notifier
  4. Configure HTTP router and start the sweep scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080, env PORT)
  -db      SQLite database path (default: compliance.db, env DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/compliance.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Daily sweep scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/warp/compliance-engine/alert"
	"github.com/warp/compliance-engine/api"
	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/metrics"
	"github.com/warp/compliance-engine/schedule"
	"github.com/warp/compliance-engine/store/sqlite"
)

func main() {
	// Flags, with environment fallbacks for containerized deployments
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "compliance.db"), "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire the domain
	clock := schedule.SystemClock()
	m := metrics.New()
	notifier := logNotifier{}

	svc := compliance.NewService(store, clock)
	svc.Metrics = m
	svc.Notifier = notifier
	svc.Logger = log.Default()

	sweeper := alert.NewSweeper(store, clock)
	sweeper.Metrics = m
	sweeper.Notifier = notifier
	sweeper.Logger = log.Default()

	// Router and background scheduler
	handler := api.NewHandler(svc, sweeper)
	router := api.NewRouter(handler)

	scheduler := api.NewSweepScheduler(svc, sweeper)
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// logNotifier writes notifications to the process log. A real deployment
// swaps in an email or messaging channel behind the same interface.
type logNotifier struct{}

func (logNotifier) Send(_ context.Context, n compliance.Notification) error {
	log.Printf("[Notify] to=%s tier=%s subject=%q", n.RecipientID, n.Tier, n.Subject)
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
