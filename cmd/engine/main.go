package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	blockchain "truecanvas/blockchain/client"
	"truecanvas/blockchain/networks"
	"truecanvas/config"
	"truecanvas/internal/messaging/consumer"
	worker "truecanvas/processing"
	"truecanvas/processing/orchestrator"
	"truecanvas/storage/store"
)

const mockBroker = "mock://local"

func main() {
	configPath := flag.String("config", "./config/engine.defaults.yml", "engine configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[ENGINE] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting Submission Engine...")

	// 1. Load Engine Config
	engineCfg, err := config.LoadEngineConfig(*configPath)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load engine configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Dependencies
	logger.Println("Initializing submission store...")
	dbStore, err := store.Open(ctx, engineCfg.Database, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize submission store: %v", err)
	}
	defer dbStore.Close()

	logger.Println("Initializing blockchain client using configuration files...")
	bcClient, bcCfg, err := blockchain.NewBlockchainClientFromFile(engineCfg.BlockchainClientConfigPath, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize blockchain client: %v", err)
	}
	defer bcClient.Close()

	registry, err := networks.Load(bcCfg.NetworksPath)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load network registry: %v", err)
	}
	policy, err := orchestrator.NewPolicy(registry, bcCfg.EventTopics)
	if err != nil {
		logger.Fatalf("FATAL: Invalid event topic configuration: %v", err)
	}
	deps := orchestrator.DependenciesFromConfig(engineCfg.Verifier, bcCfg.Confirmation, bcClient, logger)
	logger.Printf("Registry chain is %d; verification service at %s", registry.RegistryChainID(), engineCfg.Verifier.BaseURL)

	// 3. Initialize consumers
	var mqConsumers []consumer.Consumer
	if len(engineCfg.KafkaConsumer.Brokers) > 0 && engineCfg.KafkaConsumer.Brokers[0] != mockBroker {
		logger.Printf("Initializing %d Kafka message queue consumers...", engineCfg.KafkaConsumer.Count)
		for i := 0; i < engineCfg.KafkaConsumer.Count; i++ {
			kafkaConsumer, err := consumer.NewKafkaConsumer(engineCfg.KafkaConsumer, logger)
			if err != nil {
				logger.Fatalf("FATAL: Failed to initialize Kafka consumer %d: %v", i, err)
			}
			mqConsumers = append(mqConsumers, kafkaConsumer)
		}
	} else {
		logger.Println("Initializing Mock message queue consumer...")
		mqConsumers = append(mqConsumers, consumer.NewMockConsumer(logger))
	}
	defer func() {
		for _, c := range mqConsumers {
			c.Close()
		}
	}()

	// 4. Optional health listener
	var healthServer *http.Server
	if addr := engineCfg.Monitoring.HealthAddr; addr != "" {
		healthServer = startHealthServer(addr, engineCfg.Monitoring.HealthCheckPath, logger)
	}

	// 5. One worker pool per consumer
	var wg sync.WaitGroup
	for i, c := range mqConsumers {
		w := worker.New(engineCfg.Worker, engineCfg.MaxTaskRetries, logger, dbStore, c, policy, deps)
		wg.Add(1)
		go func(poolID int, w *worker.Worker) {
			defer wg.Done()
			w.Run(ctx)
			logger.Printf("Worker pool %d stopped.", poolID)
		}(i+1, w)
	}

	logger.Printf("Submission Engine started with %d worker pools. Press Ctrl+C to stop.", len(mqConsumers))

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("Received shutdown signal, initiating graceful shutdown...")
	cancel()

	if healthServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Health server shutdown failed: %v", err)
		}
		shutdownCancel()
	}

	logger.Println("Waiting for all workers to finish...")
	wg.Wait()

	logger.Println("Submission Engine shut down gracefully.")
}

func startHealthServer(addr, path string, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339Nano),
			"service":   "engine",
		})
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Printf("Health endpoint listening on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("Health server failed: %v", err)
		}
	}()
	return srv
}
