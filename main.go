package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"w9-uploads/config"
	"w9-uploads/handlers/admin"
	"w9-uploads/handlers/auth"
	"w9-uploads/handlers/form"
	authMiddleware "w9-uploads/middleware"
	"w9-uploads/settings"
	"w9-uploads/stores"
	"w9-uploads/uploads"
	"w9-uploads/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type app struct {
	cfg      *config.Config
	dir      *uploads.Directory
	settings *settings.Service
	auth     *auth.Service
}

func setupRouter(a *app) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	nonces := a.auth.Nonces()
	r.Get("/w9-upload", form.HandleForm(nonces))
	if a.cfg.ReferrerPath != "" && a.cfg.ReferrerPath != "/w9-upload" {
		r.Get(a.cfg.ReferrerPath, form.HandleForm(nonces))
	}

	limiter := authMiddleware.NewIPRateLimiter(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst)
	r.With(authMiddleware.RateLimit(limiter)).
		Post(form.SubmitPath, form.HandleSubmit(a.dir, nonces, a.cfg.Referrer(), a.cfg.Upload.MaxBytes))

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", a.auth.HandleLogin)
		r.Get("/callback", a.auth.HandleCallback)
		r.Post("/logout", a.auth.HandleLogout)
		r.Get("/logout", a.auth.HandleLogout)
	})

	page := &admin.Handler{
		Dir:      a.dir,
		Settings: a.settings,
		Users:    a.auth.Users(),
		Menu:     a.cfg.Menu,
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate(a.auth))
		r.Use(authMiddleware.RequireManager(a.settings))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, admin.PagePath, http.StatusFound)
		})
		r.Method(http.MethodGet, "/w9-uploads", page)
		r.Method(http.MethodPost, "/w9-uploads", page)
		r.Get("/api/w9-uploads", page.HandleReport)
	})

	r.Handle("/static/*", web.StaticHandler())
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/w9-upload", http.StatusFound)
	})

	return r
}

// activate prepares the upload directory and drains the legacy one into it.
func activate(cfg *config.Config, dir *uploads.Directory) error {
	if _, err := os.Stat(cfg.Upload.BaseDir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(cfg.Upload.BaseDir, 0o755); err != nil {
			return fmt.Errorf("create upload base directory: %w", err)
		}
	}
	if _, err := dir.Ensure(); err != nil {
		return err
	}
	if legacy := cfg.LegacyUploadDir(); legacy != "" {
		if _, _, err := dir.MigrateLegacy(legacy); err != nil {
			return fmt.Errorf("migrate legacy uploads: %w", err)
		}
	}
	return nil
}

// storeCloser releases database handles held by the option store.
func storeCloser(store any) func() {
	switch c := store.(type) {
	case io.Closer:
		return func() {
			if err := c.Close(); err != nil {
				logrus.WithField("error", err).Warn("Failed to close option store")
			}
		}
	case interface{ Close() }:
		return c.Close
	default:
		return func() {}
	}
}

func waitForShutdown(srv *http.Server, closers ...func()) {
	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)
	s := <-signalC
	logrus.WithField("signal", s.String()).Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithField("error", err).Error("Graceful shutdown failed")
	}
	for _, c := range closers {
		c()
	}
}

func main() {
	listenAddress := flag.String("listen", "", "The address to listen on (overrides config).")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	configPath := flag.String("config", "", "Path to a YAML config file.")
	tokenFor := flag.Int("token-for", 0, "Print a session token for the given user id and exit.")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithField("event", "load config").Fatal(err)
	}
	if *listenAddress != "" {
		cfg.Listen = *listenAddress
	}

	ctx := context.Background()
	authService := auth.NewService(ctx, cfg.Auth, auth.NewDirectory(cfg.Users))

	if *tokenFor != 0 {
		token, err := authService.TokenFor(*tokenFor)
		if err != nil {
			logrus.WithField("user_id", *tokenFor).Fatal(err)
		}
		fmt.Println(token)
		return
	}

	store, err := stores.GetOptionStore(ctx, cfg.Storage)
	if err != nil {
		logrus.WithField("event", "open option store").Fatal(err)
	}
	settingsService := settings.NewService(store, cfg.Owners)
	if err := settingsService.Bootstrap(ctx); err != nil {
		logrus.WithField("event", "bootstrap settings").Fatal(err)
	}

	dir := uploads.NewDirectory(cfg.UploadDir())
	if err := activate(cfg, dir); err != nil {
		logrus.WithField("event", "activate").Fatal(err)
	}

	r := setupRouter(&app{cfg: cfg, dir: dir, settings: settingsService, auth: authService})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", cfg.Listen).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv, storeCloser(store))
}
