package main

import (
	"OFSpectra/internal/api"
	"OFSpectra/internal/config"
	"OFSpectra/internal/controller"
	"OFSpectra/internal/controller/pipeline"
	"OFSpectra/internal/export"
	"OFSpectra/internal/metrics"
	"OFSpectra/internal/openflow"
	"OFSpectra/internal/probe"
	"OFSpectra/pkg/pcap"
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Log.ConfigureLogger(); err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Optional pipeline sinks
	var opts []pipeline.Option
	var publisher *probe.Publisher
	if cfg.Probe.Enabled {
		publisher, err = probe.NewPublisher(cfg.Probe)
		if err != nil {
			log.Fatalf("Failed to create summary publisher: %v", err)
		}
		opts = append(opts, pipeline.WithPublisher(publisher))
	}
	var recorder *pcap.Recorder
	if cfg.Capture.Enabled {
		recorder, err = pcap.NewRecorder(cfg.Capture.Path, cfg.Capture.BufferSize)
		if err != nil {
			log.Fatalf("Failed to create capture recorder: %v", err)
		}
		opts = append(opts, pipeline.WithRecorder(recorder))
	}

	// 3. Controller core
	ctrl := controller.New(&cfg.Controller, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)

	exporter, err := export.NewManagerFromConfig(ctrl, cfg.Export)
	if err != nil {
		log.Fatalf("Failed to create export manager: %v", err)
	}
	exporter.Start()

	// 4. OpenFlow listener
	ofServer := openflow.NewServer(cfg.Controller.ListenAddr, cfg.Controller.HandshakeDuration(), ctrl)
	go func() {
		if err := ofServer.ListenAndServe(); err != nil {
			log.Fatalf("OpenFlow listener failed: %v", err)
		}
	}()

	// 5. HTTP query surface and metrics
	metricsHandler, err := metrics.Handler(ctrl)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}
	server := &http.Server{
		Addr:    cfg.API.HttpListenAddr,
		Handler: api.NewRouter(ctrl, metricsHandler),
	}
	go func() {
		log.Printf("HTTP API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// 6. gRPC health
	health := api.NewHealth(ctrl.Sessions())
	var grpcServer *grpc.Server
	if cfg.API.GrpcListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.API.GrpcListenAddr)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", cfg.API.GrpcListenAddr, err)
		}
		grpcServer = grpc.NewServer()
		health.Register(grpcServer)
		go func() {
			log.Printf("gRPC health server starting on %s", cfg.API.GrpcListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Fatalf("Failed to serve gRPC: %v", err)
			}
		}()
	}

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received, stopping controller...")

	health.Shutdown()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server forced to shutdown: %v", err)
	}

	ofServer.Close()
	cancel()
	ctrl.Stop()
	exporter.Stop()
	if recorder != nil {
		recorder.Stop()
	}
	if publisher != nil {
		publisher.Close()
	}
	log.Println("Shutdown complete.")
}
