package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"motion-akademija-billing/internal/config"
	pg "motion-akademija-billing/internal/infra/db/postgres"
)

// Seeds the course catalog for local development and the payment smoke test.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	seed := []struct {
		ID    string
		Name  string
		Desc  string
		Price float64
	}{
		{"1", "Motion Akademija", "Kompletan kurs motion dizajna", 11_900},
		{"2", "After Effects Osnove", "Uvodni kurs animacije", 5_900},
	}

	for _, c := range seed {
		tag, err := pool.Exec(ctx,
			`INSERT INTO courses (id, name, description, price)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			c.ID, c.Name, c.Desc, c.Price)
		if err != nil {
			log.Fatalf("seed course %q: %v", c.Name, err)
		}
		if tag.RowsAffected() == 1 {
			fmt.Printf("seeded: %s (id=%s, price=%.2f RSD)\n", c.Name, c.ID, c.Price)
		} else {
			fmt.Printf("exists: %s (id=%s)\n", c.Name, c.ID)
		}
	}

	fmt.Println("✅ Seeding complete.")
}
