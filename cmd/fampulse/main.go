// Command fampulse runs the FamPulse backend: the record API, realtime
// change feed, avatar storage and metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/fampulse/internal/auth"
	"github.com/dukerupert/fampulse/internal/config"
	"github.com/dukerupert/fampulse/internal/database"
	"github.com/dukerupert/fampulse/internal/handler"
	"github.com/dukerupert/fampulse/internal/logging"
	"github.com/dukerupert/fampulse/internal/metrics"
	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/server"
	"github.com/dukerupert/fampulse/internal/storage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New()
	store := recordstore.NewSQLStore(db, cfg.DBDriver, logger.With("component", "store"),
		recordstore.WithObserver(m.ObserveStore))

	var uploader handler.Uploader
	if cfg.Storage.Enabled() {
		bucket, err := storage.New(cfg.Storage, logger.With("component", "storage"))
		if err != nil {
			slog.Error("failed to configure object storage", "error", err)
			os.Exit(1)
		}
		uploader = bucket
	} else {
		slog.Warn("object storage not configured, avatar uploads disabled")
	}

	srv := server.New(cfg, db, store, uploader, m, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					slog.Debug("rate limiter entries", "count", n)
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("fampulse starting", "addr", httpServer.Addr, "db", cfg.DBDriver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// issueToken mints an access token for a user, signed with the server's
// secret.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "user id")
	family := fs.String("family", "", "family id (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("token: -user is required")
	}
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("token: FAMPULSE_JWT_SECRET is not set")
	}
	token, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL).Issue(auth.AuthContext{UserID: *user, FamilyID: *family})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
