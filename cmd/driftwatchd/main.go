package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"driftwatch/internal/api"
	"driftwatch/internal/config"
	"driftwatch/internal/dash"
	"driftwatch/internal/logger"
	"driftwatch/internal/monitor"
)

func main() {
	// 1. Parse command-line arguments
	listenAddr := flag.String("l", ":8080", "HTTP listen address")
	logLevel := flag.String("L", "info", "Log level (error, warn, info, debug)")
	configFile := flag.String("c", "driftwatch.json", "Path to the config file")
	flag.Parse()

	// 2. Initialize logger
	log := logger.NewLogger(*logLevel)
	log.Infof("Starting DASH timestamp drift watcher...")
	log.Infof("Log level set to: %s", *logLevel)

	// 3. Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.Infof("Configuration loaded: %s, %d stream(s), correction enabled: %v, tolerance: %.3fs",
		cfg.Name, len(cfg.Streams), cfg.CorrectTimestampOffset, cfg.MaxTimestampDiscrepancy)

	// 4. Initialize services
	dashClient := dash.NewClient(log)
	manager := monitor.NewManager(log, cfg, dashClient)
	manager.Start()

	// 5. Set up the status API
	router := api.New(manager)

	// 6. Run the HTTP server with graceful shutdown
	server := &http.Server{
		Addr:    *listenAddr,
		Handler: router,
	}

	go func() {
		log.Infof("Status server starting on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", *listenAddr, err)
			os.Exit(1)
		}
	}()

	// Listen for shutdown signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	manager.Stop()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		os.Exit(1)
	}

	log.Infof("Exited gracefully")
}
