// main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"cartbackend/internal/api"
	"cartbackend/internal/catalog"
	"cartbackend/internal/cleanup"
	"cartbackend/internal/config"
	"cartbackend/internal/logger"
	"cartbackend/internal/middleware"
	"cartbackend/internal/session"
	"cartbackend/internal/storage"
)

type App struct {
	addr          string
	mux           *http.ServeMux
	connections   sync.WaitGroup
	totalRequests int64
}

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	config.ConfigurePaths()

	// Step 2: Setup logging
	loggerConfig := config.LoggerConfig()
	if err := logger.SetupLogger(loggerConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment and paths loaded. Logger ready.")
	config.LoadCORSConfig()
	config.LogCurrentEnvironment()

	// Step 3: Load the product catalog
	catalogSvc := catalog.NewService()
	if err := catalogSvc.LoadFromFile(config.CatalogPath()); err != nil {
		logger.LogFatal("Failed to load catalog: %v", err)
	}

	// Step 4: Open durable cart storage
	if err := storage.InitDB(config.DatabasePath()); err != nil {
		logger.LogFatal("Failed to initialize database: %v", err)
	}
	if err := storage.CreateTables(); err != nil {
		logger.LogFatal("Failed to create tables: %v", err)
	}

	// Step 5: Setup app
	app := &App{
		addr: serverAddress(),
		mux:  routes(catalogSvc),
	}

	// Step 6: Start background tasks
	go session.CleanIdleSessions()
	cleanup.StartCleanupRoutine()

	// Step 7: Run server
	app.Run()
}

// serverAddress builds the server address from environment variables
func serverAddress() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "5052"
	}
	return host + ":" + port
}

// routes sets up all API routes
func routes(catalogSvc *catalog.Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := api.NewHandler(catalogSvc)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/session", middleware.PublicMiddleware(handler.SessionHandler))
	apiMux.HandleFunc("/catalog", middleware.PublicMiddleware(handler.CatalogHandler))
	apiMux.HandleFunc("/payment-methods", middleware.PublicMiddleware(handler.PaymentMethodsHandler))
	apiMux.HandleFunc("/stats", middleware.PublicMiddleware(handler.StatsHandler))

	apiMux.HandleFunc("/cart", middleware.APIMiddleware(handler.GetCartHandler))
	apiMux.HandleFunc("/cart/items", middleware.APIMiddleware(handler.AddItemHandler))
	apiMux.HandleFunc("/cart/custom-items", middleware.APIMiddleware(handler.AddCustomItemHandler))
	apiMux.HandleFunc("/cart/remove-item", middleware.APIMiddleware(handler.RemoveItemHandler))
	apiMux.HandleFunc("/cart/quantity", middleware.APIMiddleware(handler.SetQuantityHandler))
	apiMux.HandleFunc("/cart/discount", middleware.APIMiddleware(handler.SetDiscountHandler))
	apiMux.HandleFunc("/cart/payment-method", middleware.APIMiddleware(handler.SetPaymentMethodHandler))
	apiMux.HandleFunc("/cart/receipt-mode", middleware.APIMiddleware(handler.SetReceiptModeHandler))
	apiMux.HandleFunc("/cart/clear", middleware.APIMiddleware(handler.ClearCartHandler))
	apiMux.HandleFunc("/cart/receipt", middleware.APIMiddleware(handler.ReceiptHandler))

	mux.Handle("/api/", http.StripPrefix("/api", apiMux))

	return mux
}

// Run starts the HTTP server
func (a *App) Run() {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a separate goroutine
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal
	<-stop
	logger.LogInfo("Shutdown signal received")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	}

	// Wait for active connections to finish
	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()

	if err := storage.CloseDB(); err != nil {
		logger.LogError("Failed to close database: %v", err)
	}

	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
	logger.LogInfo("Server shut down gracefully")
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = withJSON404(handler)
	handler = a.trackConnections(handler)
	handler = middleware.CORS(handler)
	handler = withTimeout(handler, 15*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}

// Middleware: replace the mux's plain-text 404 with a JSON body. Handlers
// that already answered 404 with JSON pass through untouched.
func withJSON404(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		crw := &captureResponseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		h.ServeHTTP(crw, r)

		if crw.replaced {
			logger.LogInfo("404 not found: %s", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]string{
				"code":    "not_found",
				"message": "No such endpoint",
			})
		}
	})
}

// captureResponseWriter swaps a plain-text 404 body for JSON
type captureResponseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	replaced   bool
}

func (crw *captureResponseWriter) WriteHeader(code int) {
	if crw.written {
		return
	}
	crw.written = true
	crw.statusCode = code

	if code == http.StatusNotFound && !strings.Contains(crw.Header().Get("Content-Type"), "application/json") {
		crw.replaced = true
		crw.Header().Set("Content-Type", "application/json")
	}
	crw.ResponseWriter.WriteHeader(code)
}

func (crw *captureResponseWriter) Write(b []byte) (int, error) {
	if !crw.written {
		crw.WriteHeader(http.StatusOK)
	}
	if crw.replaced {
		// The original body is dropped; the JSON payload is written after
		// the handler returns
		return len(b), nil
	}
	return crw.ResponseWriter.Write(b)
}
