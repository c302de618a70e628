// Command seed prepares a backend project for the marketplace: it applies
// the database schema and provisions the public image bucket.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/handcrafted-haven/marketplace/internal/config"
	"github.com/handcrafted-haven/marketplace/internal/platform/migrations"
	"github.com/handcrafted-haven/marketplace/internal/supabase"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "Path to .env file with backend credentials")
		databaseDSN = flag.String("database-dsn", "", "Postgres DSN of the backend database (overrides DATABASE_URL)")
		skipSchema  = flag.Bool("skip-schema", false, "Skip applying the database schema")
		skipBucket  = flag.Bool("skip-bucket", false, "Skip creating the storage bucket")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("load env (%s): %v", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Supabase.ServiceKey == "" {
		log.Fatal("SUPABASE_SERVICE_KEY is required to seed a project")
	}

	ctx := context.Background()

	if !*skipSchema {
		dsn := *databaseDSN
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" {
			log.Fatal("set --database-dsn or DATABASE_URL to apply the schema")
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("ping database: %v", err)
		}
		if err := migrations.Apply(ctx, db); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
		log.Println("schema applied")
	}

	if !*skipBucket {
		client, err := supabase.New(supabase.Config{
			ProjectURL: cfg.Supabase.ProjectURL,
			AnonKey:    cfg.Supabase.AnonKey,
			ServiceKey: cfg.Supabase.ServiceKey,
		})
		if err != nil {
			log.Fatalf("backend client: %v", err)
		}

		bucket := cfg.Supabase.StorageBucket
		if err := client.Storage().CreateBucket(ctx, bucket, true); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				log.Fatalf("create bucket %s: %v", bucket, err)
			}
			log.Printf("bucket %s already exists", bucket)
		} else {
			log.Printf("bucket %s created", bucket)
		}
	}

	log.Println("seed complete")
}
