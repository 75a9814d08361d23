package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"truecanvas/blockchain/networks"
	apiconfig "truecanvas/config"
	core "truecanvas/ingestion/service/core"
	grpchandler "truecanvas/ingestion/service/grpc"
	httphandler "truecanvas/ingestion/service/http"
	"truecanvas/internal/messaging/producer"
	"truecanvas/storage/store"
)

const mockBroker = "mock://local"

func main() {
	configPath := flag.String("config", "./config/ingestion.defaults.yml", "ingestion gateway configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "[API-GW] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting Ingestion Gateway...")

	// 1. Load gateway configuration
	cfg, err := apiconfig.LoadApiGatewayConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load gateway configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize dependencies
	logger.Println("Initializing submission store...")
	dbStore, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize submission store: %v", err)
	}
	defer dbStore.Close()

	var mq producer.Producer
	if len(cfg.KafkaProducer.Brokers) > 0 && cfg.KafkaProducer.Brokers[0] == mockBroker {
		logger.Println("Initializing in-memory producer...")
		mem := producer.NewMemoryProducer(cfg.BatchProcessor.FlushChannelBuffer, logger)
		go func() {
			// Nothing consumes in this mode; log and discard
			for m := range mem.Messages() {
				logger.Printf("[mock] would publish request_id=%s (%d bytes of image)", m.RequestID, len(m.Image))
			}
		}()
		mq = mem
	} else {
		logger.Println("Initializing Kafka producer...")
		kp, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		mq = kp
	}
	defer mq.Close()

	registry, err := networks.Load(cfg.NetworksPath)
	if err != nil {
		logger.Fatalf("Failed to load network registry: %v", err)
	}

	// 3. Core service and handlers
	coreService := core.NewService(dbStore, mq, registry, logger, cfg.BatchProcessor)
	defer coreService.Close()

	var wg sync.WaitGroup

	// 4. [Conditional startup] HTTP server
	var httpServer *http.Server
	if cfg.HttpListenAddr != "" {
		mux := http.NewServeMux()
		httphandler.NewSubmissionHandler(coreService, logger, cfg.HttpServer.MaxBodyBytes).Register(mux)

		httpServer = &http.Server{
			Addr:           cfg.HttpListenAddr,
			Handler:        mux,
			ReadTimeout:    cfg.HttpServer.ReadTimeout,
			WriteTimeout:   cfg.HttpServer.WriteTimeout,
			IdleTimeout:    cfg.HttpServer.IdleTimeout,
			MaxHeaderBytes: cfg.HttpServer.MaxHeaderBytes,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Printf("HTTP server listening on %s", cfg.HttpListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("HTTP server startup failed: %v", err)
			}
			logger.Println("HTTP server stopped listening.")
		}()
	} else {
		logger.Println("http_listen_addr not configured, skipping HTTP server startup.")
	}

	// 5. [Conditional startup] gRPC server
	var grpcServer *grpc.Server
	if cfg.GrpcListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.GrpcListenAddr)
		if err != nil {
			logger.Fatalf("Unable to listen on gRPC port %s: %v", cfg.GrpcListenAddr, err)
		}
		grpcServer = grpc.NewServer(grpc.MaxRecvMsgSize(int(cfg.HttpServer.MaxBodyBytes)))
		grpchandler.RegisterIngestionServer(grpcServer, grpchandler.NewServer(coreService, logger))
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Printf("gRPC server listening on %s", cfg.GrpcListenAddr)
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Fatalf("gRPC server startup failed: %v", err)
			}
			logger.Println("gRPC server stopped listening.")
		}()
	} else {
		logger.Println("grpc_listen_addr not configured, skipping gRPC server startup.")
	}

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received shutdown signal: %s, starting graceful shutdown...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP server shutdown failed: %v", err)
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	wg.Wait()
	logger.Println("All servers stopped. Ingestion Gateway shutdown.")
}
