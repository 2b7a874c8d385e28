package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expenselog/internal/config"
	"expenselog/internal/handlers"
	"expenselog/internal/storage"
	"expenselog/web"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// One-off housekeeping; there is no background scheduler.
	if err := db.CleanExpiredSessions(); err != nil {
		logger.WithError(err).Warn("failed to clean expired sessions")
	}

	h := handlers.NewHandlers(db, logger, cfg.SecureCookie)
	mux := setupRouter(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server shutdown error")
		}
	}()

	logger.WithFields(logrus.Fields{"port": cfg.Port, "db": cfg.DBPath}).Info("starting server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

// setupRouter wires all routes. Protected routes go through AuthMiddleware,
// which redirects anonymous visitors to /login.
func setupRouter(h *handlers.Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /welcome", h.Welcome)
	mux.HandleFunc("GET /register", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.Handle("GET /static/", http.FileServerFS(web.StaticFS))

	// Protected routes
	mux.Handle("GET /dashboard", h.AuthMiddleware(http.HandlerFunc(h.Dashboard)))
	mux.Handle("GET /add", h.AuthMiddleware(http.HandlerFunc(h.AddExpenseForm)))
	mux.Handle("POST /add", h.AuthMiddleware(http.HandlerFunc(h.AddExpense)))
	mux.Handle("GET /delete/{id}", h.AuthMiddleware(http.HandlerFunc(h.DeleteExpense)))
	mux.Handle("GET /logout", h.AuthMiddleware(http.HandlerFunc(h.Logout)))

	return mux
}
