package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"paystream.org/internal/engine"
	"paystream.org/internal/httpapi"
	"paystream.org/internal/obs"
	"paystream.org/internal/stream"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// DB handle is optional; with a DSN configured /readyz pings it.
	var db *sql.DB
	if dsn := os.Getenv("PAYSTREAM_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, engine.New(), stream.New())

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting", map[string]any{
		"service": "paystream-api",
		"version": version,
		"addr":    srv.Addr,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("shutting_down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	obs.Info("stopped", nil)
}
