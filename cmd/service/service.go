package service

import (
	"context"
	"encoding/json"
	"net"
	gohttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/blocksync/blocksync/pkg/endpoint"
	"github.com/blocksync/blocksync/pkg/http"
	"github.com/blocksync/blocksync/pkg/service"
	"github.com/blocksync/blocksync/pkg/service/blockqueue"
	"github.com/blocksync/blocksync/pkg/service/store"
)

func getRedisClient() (*redis.Client, error) {
	address, ok := os.LookupEnv("REDIS_ADDRESS")
	if !ok {
		return nil, errors.New("missing Redis address")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     "",
		DB:           0,
		MaxRetries:   10,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return client, nil
}

func getBackupInterval() (time.Duration, error) {
	v, ok := os.LookupEnv("BACKUP_INTERVAL_SECONDS")
	if !ok {
		return 0, nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, "invalid backup interval")
	}
	return time.Duration(seconds) * time.Second, nil
}

// applyBlock is the pipeline's domain step for one block. The payload
// is opaque to the queue; the continuation advances to the block's
// cursor field when it carries one.
func applyBlock(_ context.Context, block blockqueue.Block) (string, error) {
	var meta struct {
		Cursor string `json:"cursor"`
	}
	if err := json.Unmarshal(block, &meta); err != nil {
		return "", errors.Wrap(err, "malformed block payload")
	}
	return meta.Cursor, nil
}

// Run runs the block syncing pipeline and its query API.
func Run() {
	setup()
}

func setup() {
	l := log.NewJSONLogger(os.Stderr)

	secret, ok := os.LookupEnv("AUTH_SECRET")
	if !ok {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", "missing auth secret")
		os.Exit(1)
	}
	interval, err := getBackupInterval()
	if err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err)
		os.Exit(1)
	}

	rc, err := getRedisClient()
	if err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err)
		os.Exit(1)
	}
	adapter := store.NewRedisAdapter(rc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.Connect(ctx); err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err)
		os.Exit(1)
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			_ = l.Log("LEVEL", "WARN", "MESSAGE", err)
		}
	}()

	q := blockqueue.New(adapter, l)

	// Business logic: one worker per category plus the query API.
	workers := make(map[blockqueue.Category][]service.WorkerService, len(blockqueue.Categories()))
	for _, category := range blockqueue.Categories() {
		workers[category] = []service.WorkerService{
			service.NewWorkerService(service.WorkerServiceConfig{
				Queue:    q,
				Category: category,
				Handler:  applyBlock,
				Log:      l,
			}),
		}
	}
	pipeline := service.NewPipeline(service.PipelineConfig{
		Queue:    q,
		Workers:  workers,
		Log:      l,
		Interval: interval,
	})
	apiService := service.NewAPIService(q, l)

	// Reseed queues and worker cursors from the last backup before
	// anything starts draining.
	if err := pipeline.Restore(ctx); err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err)
		os.Exit(1)
	}

	// Endpoints.
	apiEndpoint := endpoint.MakeAPIExecuteQueryEndpoint(apiService)

	// Transports.
	httpHandler := http.NewAPIHTTPHandler(apiEndpoint, secret, nil)
	server, err := serveHTTP(httpHandler)
	if err != nil {
		_ = l.Log("LEVEL", "ERROR", "MESSAGE", err)
		os.Exit(1)
	}

	go func() {
		sigC := make(chan os.Signal, 1)
		signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)
		<-sigC
		_ = l.Log("LEVEL", "INFO", "MESSAGE", "Shutting down")
		cancel()
	}()

	// Message loops.
	totalWorkers := 0
	for _, ws := range workers {
		totalWorkers += len(ws)
	}
	var wg sync.WaitGroup
	wg.Add(2 + totalWorkers)
	go func() {
		defer wg.Done()
		server(ctx, l)
	}()
	go func() {
		defer wg.Done()
		pipeline.Run(ctx)
	}()
	for _, ws := range workers {
		for _, w := range ws {
			w := w
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
	}
	wg.Wait()
}

func serveHTTP(h gohttp.Handler) (func(context.Context, log.Logger), error) {
	// Separate listening and serving to capture listen errors.
	l, err := net.Listen("tcp", "0.0.0.0:8080")
	if err != nil {
		return nil, errors.Wrap(err, "unable to create TCP listener")
	}

	return func(ctx context.Context, logger log.Logger) {
		go func() {
			<-ctx.Done()
			if err := l.Close(); err != nil {
				_ = logger.Log("LEVEL", "WARN", "MESSAGE", err)
			}
		}()
		err := gohttp.Serve(l, h)
		_ = logger.Log("LEVEL", "ERROR", "MESSAGE", err)
	}, nil
}
