package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	firebase "firebase.google.com/go"
	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"fixitBack/internal/config"
	"fixitBack/internal/events"
	"fixitBack/internal/homeservice"
	"fixitBack/internal/identity"
)

type application struct {
	logger   *zap.SugaredLogger
	cfg      config.Config
	parser   *identity.Parser
	db       *sql.DB
	rdb      *redis.Client
	queue    *asynq.Client
	redisOpt asynq.RedisClientOpt
	closers  []func() error
	deps     *homeservice.Deps
}

func initializeApp(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*application, error) {
	app := &application{
		logger: logger,
		cfg:    cfg,
		parser: identity.NewParser(cfg.JWT.Secret),
		redisOpt: asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
	}

	db, err := openDB(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rdb, err := openRedis(ctx, cfg, logger)
	if err != nil {
		app.close()
		return nil, err
	}
	app.rdb = rdb
	app.closers = append(app.closers, rdb.Close)

	app.queue = asynq.NewClient(app.redisOpt)
	app.closers = append(app.closers, app.queue.Close)

	moduleCfg, err := homeservice.LoadConfig()
	if err != nil {
		app.close()
		return nil, err
	}

	deps := &homeservice.Deps{
		DB:         db,
		RDB:        rdb,
		Logger:     logger,
		Config:     moduleCfg,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Queue:      app.queue,
	}

	if cfg.Firebase.CredentialsFile != "" {
		fb, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		if err != nil {
			app.close()
			return nil, fmt.Errorf("init firebase: %w", err)
		}
		client, err := fb.Messaging(ctx)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("init firebase messaging: %w", err)
		}
		deps.Messaging = client
	} else {
		logger.Infof("firebase credentials not set, push notifications disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		deps.Publisher = publisher
		app.closers = append(app.closers, publisher.Close)
	} else {
		logger.Infof("kafka brokers not set, lifecycle events disabled")
	}

	app.deps = deps
	return app, nil
}

func (app *application) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Errorf("close: %v", err)
		}
	}
}

func openDB(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxIdleConns(35)
	db.SetConnMaxLifetime(5 * time.Minute)

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Errorf("ping db: %v, retrying in %s", err, wait)
	}
	if err := backoff.RetryNotify(ping, connectBackOff(ctx), notify); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	logger.Infof("Successfully connected to database")
	return db, nil
}

func openRedis(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	}
	notify := func(err error, wait time.Duration) {
		logger.Errorf("ping redis: %v, retrying in %s", err, wait)
	}
	if err := backoff.RetryNotify(ping, connectBackOff(ctx), notify); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Infof("Redis connected")
	return rdb, nil
}

func connectBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	return backoff.WithContext(b, ctx)
}
