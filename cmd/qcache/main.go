package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tobgu/qcache-go/internal/cache"
	"github.com/tobgu/qcache-go/internal/config"
	"github.com/tobgu/qcache-go/internal/httpapi"
)

const version = "1.0.0"

func main() {
	cfg := config.DefaultConfig()

	var basicAuth string
	flag.IntVar(&cfg.Server.Port, "port", cfg.Server.Port, "HTTP listen port")
	flag.Int64Var(&cfg.Cache.Size, "size", cfg.Cache.Size, "total cache byte budget")
	ageSeconds := flag.Int("age", int(cfg.Cache.Age/time.Second), "dataset max age in seconds (0 = unbounded)")
	flag.IntVar(&cfg.Cache.StatisticsBufferSize, "statistics-buffer-size", cfg.Cache.StatisticsBufferSize, "statistics ring buffer capacity")
	flag.StringVar(&cfg.Server.CertFile, "cert-file", cfg.Server.CertFile, "TLS certificate file")
	flag.StringVar(&cfg.Server.CAFile, "ca-file", cfg.Server.CAFile, "TLS client CA file")
	flag.StringVar(&basicAuth, "basic-auth", "", "USER:PASS, requires --cert-file")
	flag.IntVar(&cfg.Server.APIWorkers, "api-workers", cfg.Server.APIWorkers, "number of HTTP worker goroutines")
	flag.IntVar(&cfg.Cache.Shards, "cache-shards", cfg.Cache.Shards, "number of cache shards")
	flag.Int64Var(&cfg.Cache.L2Size, "l2-cache-size", cfg.Cache.L2Size, "L2 tier byte budget (0 disables L2)")
	flag.BoolVar(&cfg.Server.Debug, "debug", cfg.Server.Debug, "enable debug logging")
	flag.Parse()

	cfg.Cache.Age = time.Duration(*ageSeconds) * time.Second

	if basicAuth != "" {
		user, pass, err := config.ParseBasicAuth(basicAuth)
		if err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		cfg.Server.BasicAuthUser = user
		cfg.Server.BasicAuthPass = pass
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Printf("qcache v%s\n", version)
	fmt.Println("In-memory, queryable columnar dataset cache")
	fmt.Println()

	log.Printf("Configuration loaded:")
	log.Printf("  Port: %d", cfg.Server.Port)
	log.Printf("  Cache size: %d bytes across %d shards", cfg.Cache.Size, cfg.Cache.Shards)
	log.Printf("  Max age: %s", cfg.Cache.Age)
	log.Printf("  L2 cache size: %d bytes", cfg.Cache.L2Size)

	log.Println("Starting cache engine...")
	c, err := cache.New(cache.Config{
		ShardCount:           cfg.Cache.Shards,
		ShardSize:            cfg.Cache.Size / int64(cfg.Cache.Shards),
		ShardMaxAge:          cfg.Cache.Age,
		L2Size:               cfg.Cache.L2Size,
		L2MaxAge:             cfg.Cache.Age,
		StatisticsBufferSize: cfg.Cache.StatisticsBufferSize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache engine: %v", err)
	}
	defer c.Stop()

	log.Println("Cache engine initialized")

	server := httpapi.NewServer(c, httpapi.Options{
		Addr:          fmt.Sprintf(":%d", cfg.Server.Port),
		Debug:         cfg.Server.Debug,
		BasicAuthUser: cfg.Server.BasicAuthUser,
		BasicAuthPass: cfg.Server.BasicAuthPass,
		CertFile:      cfg.Server.CertFile,
		CAFile:        cfg.Server.CAFile,
	})

	go func() {
		log.Printf("HTTP server listening on :%d", cfg.Server.Port)
		if err := server.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped successfully")
}
