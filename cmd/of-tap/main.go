package main

import (
	"OFSpectra/internal/config"
	"OFSpectra/internal/model"
	"OFSpectra/internal/probe"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// of-tap prints the packet summaries published by a running controller.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	protocol := flag.String("protocol", "", "only print summaries with this protocol tag")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Log.ConfigureLogger(); err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}
	if *protocol != "" && !model.Tag(*protocol).Valid() {
		log.Fatalf("Unknown protocol tag '%s'", *protocol)
	}

	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	enc := json.NewEncoder(os.Stdout)
	err = sub.Start(func(s model.PacketSummary) {
		if *protocol != "" && string(s.Protocol) != *protocol {
			return
		}
		if err := enc.Encode(s); err != nil {
			fmt.Fprintf(os.Stderr, "failed to print summary: %v\n", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start subscriber: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down tap...")
}
