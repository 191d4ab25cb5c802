package main

import (
	"concord-backend/internal/config"
	"concord-backend/internal/database"
	"concord-backend/internal/handlers"
	"concord-backend/internal/hierarchy"
	"concord-backend/internal/jwt"
	"concord-backend/internal/keyValue"
	"concord-backend/internal/membership"
	"concord-backend/internal/messages"
	"concord-backend/internal/snowflake"
	"concord-backend/internal/storage"
	"concord-backend/internal/users"
	"concord-backend/internal/validator"
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupLogger(cfg *config.ConfigFile) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.LogToFile {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, "app.log")
	}
	zapConfig.Level = level

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

func setupRedis(cfg *config.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func main() {
	fmt.Println("Reading config file...")
	cfg, err := config.Load("config.json")
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer sugar.Sync()

	db, dialect, err := database.Setup(sugar, cfg)
	if err != nil {
		sugar.Fatal(err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if !cfg.SelfContained {
		sugar.Info("Connecting to redis...")
		redisClient, err = setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
	}

	kv := keyValue.New(sugar, redisClient, cfg.SelfContained)
	defer kv.Close()

	ids, err := snowflake.New(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	store := storage.NewSQL(db, dialect, cfg.TransactionalWrites)
	sugar.Infof("Storage is %s, transactional writes: %t", dialect, store.Transactional())

	channels := hierarchy.New(sugar, store, kv, ids)
	coordinator := membership.New(sugar, store, kv, ids)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ReconcileIntervalSeconds > 0 {
		go coordinator.RunReconciler(ctx, time.Duration(cfg.ReconcileIntervalSeconds)*time.Second)
	}

	h := handlers.New(sugar, cfg, validator.New(), jwt.New(cfg.JwtSecret, cfg.IsHttps()), kv, handlers.Services{
		Users:      users.New(sugar, store, kv, ids),
		Membership: coordinator,
		Hierarchy:  channels,
		Messages:   messages.New(sugar, store, channels, ids),
	})

	sugar.Infof("Server is running on %s", cfg.FullAddress())

	server := h.NewServer()
	errs := make(chan error, 1)
	go func() {
		errs <- h.Serve(server)
	}()

	select {
	case err := <-errs:
		if err != nil {
			sugar.Fatal(err)
		}
	case <-ctx.Done():
		sugar.Info("Shutting down, waiting for requests in progress...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err = server.Shutdown(shutdownCtx)
		if err != nil {
			sugar.Error(err)
		}
	}
}
