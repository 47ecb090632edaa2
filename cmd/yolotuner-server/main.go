package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/prernadh/yolo-model-tuner-runner/internal/config"
	"github.com/prernadh/yolo-model-tuner-runner/internal/redact"
	"github.com/prernadh/yolo-model-tuner-runner/internal/service"
	"github.com/prernadh/yolo-model-tuner-runner/internal/store"
	"github.com/prernadh/yolo-model-tuner-runner/internal/training"
	grpcx "github.com/prernadh/yolo-model-tuner-runner/internal/transport/grpc"
	httpx "github.com/prernadh/yolo-model-tuner-runner/internal/transport/http"
	"github.com/prernadh/yolo-model-tuner-runner/internal/workdir"
)

func main() {
	cfg := config.Load()

	datasetStore, storeDesc, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("store setup failed: %v", err)
	}
	defer func() {
		if err := datasetStore.Close(); err != nil {
			log.Printf("store close warning: %v", err)
		}
	}()

	if err := datasetStore.Load(); err != nil {
		log.Fatalf("store initialization failed: %v", err)
	}

	layout := workdir.New(cfg.WorkRoot)
	if err := layout.Ensure(); err != nil {
		log.Fatalf("work directory setup failed: %v", err)
	}

	pipeline := &training.Pipeline{
		Store:        datasetStore,
		Layout:       layout,
		Tool:         cfg.TrainTool,
		UsePTY:       cfg.UsePTY,
		OutputWriter: os.Stdout,
		Redact:       redact.New(cfg.RedactOutput, nil),
	}
	queue := training.NewQueue(datasetStore, pipeline, cfg.QueueDepth)
	queue.Start()

	hubService := service.NewHubService(datasetStore, queue, pipeline, cfg.Orchestrators, storeDesc)
	handler := grpcx.NewHubHandler(hubService)
	httpServer := httpx.NewServer(cfg.HTTPAddr, hubService)

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.GRPCAddr, err)
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcx.RecoveryUnaryInterceptor(),
			grpcx.AuthUnaryInterceptor(cfg.AuthToken),
			grpcx.LoggingUnaryInterceptor(),
			grpcx.ErrorUnaryInterceptor(),
		),
	)
	grpcx.RegisterHubServer(server, handler)

	healthService := health.NewServer()
	healthService.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthService)

	if cfg.EnableReflection {
		reflection.Register(server)
	}

	go func() {
		log.Printf("tuner hub gRPC server listening on %s", cfg.GRPCAddr)
		log.Printf("store driver=%s source=%s", cfg.StoreDriver, storeDesc)
		log.Printf("training tool=%s work_root=%s", pipeline.Tool, layout.Root)
		if len(cfg.Orchestrators) > 0 {
			log.Printf("delegated targets: %s", strings.Join(cfg.Orchestrators, ", "))
		}
		if cfg.AuthToken == "" {
			log.Printf("AUTH_TOKEN is not configured; write methods are currently unauthenticated.")
		}
		if err := server.Serve(listener); err != nil {
			log.Fatalf("grpc serve failed: %v", err)
		}
	}()

	go func() {
		if strings.TrimSpace(cfg.HTTPAddr) == "" {
			return
		}
		log.Printf("tuner hub HTTP dashboard listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve failed: %v", err)
		}
	}()

	waitForShutdown(server, httpServer, queue)
}

func waitForShutdown(server *grpc.Server, httpServer *http.Server, queue *training.Queue) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("shutdown signal received; draining gRPC server")
	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Println("gRPC server stopped gracefully")
	case <-time.After(5 * time.Second):
		log.Println("graceful timeout reached; forcing stop")
		server.Stop()
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown warning: %v", err)
		}
	}

	log.Println("stopping job queue")
	queue.Stop()
}

func buildStore(cfg config.Config) (store.DatasetStore, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "postgres":
		pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, "", err
		}
		return pgStore, "postgres", nil
	case "", "file":
		return store.NewFileStore(cfg.DataFile), cfg.DataFile, nil
	default:
		return nil, "", fmt.Errorf("unsupported STORE_DRIVER %q; expected file|postgres", cfg.StoreDriver)
	}
}
