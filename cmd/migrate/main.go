package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/geodetect/internal/adapters/postgres"
	"github.com/samirrijal/geodetect/internal/pkg/config"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|status> [dir]")
	}
	dir := "migrations"
	if len(os.Args) > 2 {
		dir = os.Args[2]
	}

	cfg, err := config.Load("geodetect-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	if _, err := db.Pool.Exec(ctx, migrationsTable); err != nil {
		log.Fatalf("create schema_migrations: %v", err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, db, files)
	case "status":
		printStatus(ctx, db, files)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// migrationFiles returns the .sql files in dir in lexical order.
func migrationFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func applied(ctx context.Context, db *postgres.DB) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(names))
	for _, n := range names {
		done[n] = true
	}
	return done, nil
}

func runMigrations(ctx context.Context, db *postgres.DB, files []string) {
	done, err := applied(ctx, db)
	if err != nil {
		log.Fatalf("read schema_migrations: %v", err)
	}

	for _, f := range files {
		name := filepath.Base(f)
		if done[name] {
			fmt.Printf("--  %s\n", name)
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		err = pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", name)
	}

	log.Println("all migrations applied")
}

func printStatus(ctx context.Context, db *postgres.DB, files []string) {
	done, err := applied(ctx, db)
	if err != nil {
		log.Fatalf("read schema_migrations: %v", err)
	}
	for _, f := range files {
		state := "pending"
		if done[filepath.Base(f)] {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, filepath.Base(f))
	}
}
