package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stashboard/api/db"
	"stashboard/api/internal/app"
	"stashboard/api/internal/authpw"
	"stashboard/api/internal/config"
	"stashboard/api/internal/logger"
	"stashboard/api/internal/session"
	"stashboard/api/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()
	ctx := context.Background()

	var dataStore store.Store
	switch cfg.DBDriver {
	case "postgres":
		sqlDB, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("database connection failed", logger.Error(err))
		}
		defer sqlDB.Close()
		if err := store.ApplyMigrations(ctx, sqlDB, db.Migrations); err != nil {
			log.Fatal("migrations failed", logger.Error(err))
		}
		dataStore = store.NewPostgresStore(sqlDB)
	case "sqlite":
		sqlDB, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatal("sqlite open failed", logger.Error(err))
		}
		defer sqlDB.Close()
		sqliteStore, err := store.NewSQLiteStore(ctx, sqlDB)
		if err != nil {
			log.Fatal("sqlite schema failed", logger.Error(err))
		}
		dataStore = sqliteStore
	default:
		log.Fatal("unknown DB driver", logger.String("driver", cfg.DBDriver))
	}

	accounts := authpw.NewService(dataStore)

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis connection failed", logger.Error(err))
		}
		defer redisStore.Close()
		log.Info("refresh tokens stored in redis")
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, accounts, log)
	} else {
		log.Info("refresh tokens stored in the SQL database")
		service = app.New(cfg, dataStore, accounts, log)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("stashboard api listening", logger.String("addr", cfg.Addr), logger.String("driver", cfg.DBDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", logger.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", logger.Error(err))
	}
}
