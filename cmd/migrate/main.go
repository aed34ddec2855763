package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/config"
	"promptdesk.dev/internal/migrate"
	"promptdesk.dev/internal/obs"
	"promptdesk.dev/internal/seed"
	"promptdesk.dev/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		dsn   = flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
		table = flag.String("table", "", "Migrations bookkeeping table (default schema_migrations)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|seed]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn, 2)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), nil, migrate.WithMigrationsTable(*table))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
		if err == nil && len(applied) == 0 {
			fmt.Println("schema is up to date")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			err = nil
		} else if err == nil {
			fmt.Println("rolled back", name)
		}
	case "status":
		var status []migrate.MigrationStatus
		status, err = mgr.Status(ctx)
		for _, st := range status {
			mark := "pending"
			if st.Applied {
				mark = "applied"
			}
			fmt.Printf("%-8s %s\n", mark, st.Name)
		}
	case "seed":
		err = runSeed(ctx, store)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// runSeed bootstraps the admin from ADMIN_* and inserts the default prompts.
func runSeed(ctx context.Context, store *pg.Store) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	accounts, err := auth.NewAccountService(store, auth.NewHasher(cfg.BcryptCost, 0), nil, obs.Logger())
	if err != nil {
		return err
	}
	rep := seed.New(accounts, store, store, obs.Logger()).Run(ctx, seed.Options{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		AdminName:     cfg.AdminName,
	})
	if rep.AdminID != "" {
		fmt.Println("admin", rep.AdminID, "created:", rep.AdminCreated)
	}
	fmt.Println("default prompts created:", rep.PromptsCreated)
	return rep.Err
}
