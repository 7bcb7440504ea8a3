// Command seed populates a healthwatch database with a synthetic demo
// population. Intended for staging and local development only.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/healthwatch/internal/config"
	"github.com/healthwatch/internal/seed"
	"github.com/healthwatch/internal/store"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		customers  = flag.Int("customers", 60, "Number of customers to generate")
		rngSeed    = flag.Int64("seed", time.Now().UnixNano(), "RNG seed for reproducible populations")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("Seeding requires driver=postgres; the in-memory store lives inside the server process")
	}

	st, err := store.NewPostgresStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	rng := rand.New(rand.NewSource(*rngSeed))
	start := time.Now()
	if err := seed.Seed(context.Background(), st, *customers, time.Now().UTC(), rng); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d customers in %s", *customers, time.Since(start))
}
