package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthwatch/internal/analytics"
	"github.com/healthwatch/internal/api"
	"github.com/healthwatch/internal/billing"
	"github.com/healthwatch/internal/config"
	"github.com/healthwatch/internal/events"
	"github.com/healthwatch/internal/health"
	"github.com/healthwatch/internal/scoring"
	"github.com/healthwatch/internal/seed"
	"github.com/healthwatch/internal/store"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Store is the combined persistence surface the service wires together.
type Store interface {
	api.CustomerStore
	api.ActivityStore
	scoring.CustomerStore
	scoring.ActivityStore
	analytics.CustomerLister
	health.Pinger
	Close() error
}

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path")
		demo        = flag.Int("demo", 0, "Seed the store with this many demo customers at startup")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("healthwatch version %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}

	log.Printf("Starting healthwatch v%s (commit: %s, built: %s)", version, commit, date)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Storage
	var st Store
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := store.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		st = pg
	default:
		log.Printf("Using in-memory store; data will not survive restarts")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	if *demo > 0 {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		if err := seed.Seed(context.Background(), st, *demo, time.Now().UTC(), rng); err != nil {
			log.Fatalf("Demo seeding failed: %v", err)
		}
		log.Printf("Seeded %d demo customers", *demo)
	}

	// Event bus
	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		bus, err := events.NewKafkaBus(cfg.Kafka.KafkaConfig)
		if err != nil {
			log.Fatalf("Failed to initialize event bus: %v", err)
		}
		publisher = bus
	} else {
		publisher = events.NewNopBus()
	}
	defer publisher.Close()

	// Scoring engine and population aggregator
	engine := scoring.NewEngine(cfg.Scoring, st, st)
	aggregator := analytics.NewAggregator(engine, st, cfg.Scoring)

	// Billing ingestion
	var webhooks http.Handler
	if cfg.Stripe.Enabled {
		webhooks = billing.NewWebhookHandler(cfg.Stripe.WebhookConfig, st)
	}

	// Readiness checks
	checker := health.NewChecker()
	checker.Register(health.NewPingCheck("store", st, 2*time.Second))
	if cfg.Kafka.Enabled {
		checker.Register(health.NewPingCheck("kafka", publisher, 2*time.Second))
	}

	gateway := api.NewGateway(cfg.Server, st, st, engine, aggregator, publisher, checker, webhooks)

	go func() {
		if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Gateway failed: %v", err)
		}
	}()

	waitForShutdown(gateway)
}

func waitForShutdown(gateway *api.Gateway) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, stopping services...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gateway.Stop(shutdownCtx); err != nil {
		log.Printf("Error during gateway shutdown: %v", err)
	}

	log.Println("healthwatch stopped")
}
