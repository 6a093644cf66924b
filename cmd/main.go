package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"fixitBack/internal/config"
	"fixitBack/internal/homeservice"
	"fixitBack/internal/homeservice/notify"
	"fixitBack/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync(zl)
	sugar := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := initializeApp(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("initialize: %v", err)
	}
	defer app.close()

	handler, err := app.routes()
	if err != nil {
		sugar.Fatalf("routes: %v", err)
	}
	if err := homeservice.StartWorkers(ctx, app.deps); err != nil {
		sugar.Fatalf("start workers: %v", err)
	}

	worker := asynq.NewServer(app.redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues:      map[string]int{notify.QueueName: 1},
	})
	taskMux := asynq.NewServeMux()
	if err := homeservice.RegisterTaskHandlers(taskMux, app.deps); err != nil {
		sugar.Fatalf("register task handlers: %v", err)
	}
	if err := worker.Start(taskMux); err != nil {
		sugar.Fatalf("start notification worker: %v", err)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      c.Handler(handler),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		sugar.Infof("Starting server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorf("listen: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	sugar.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("server shutdown: %v", err)
	}
	worker.Shutdown()
}
