package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/quickvisa/intake-backend/internal/config"
	"github.com/quickvisa/intake-backend/internal/database"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-database-url URL] up | down [-steps N] | version")
	flag.PrintDefaults()
}

func main() {
	var dbURLFlag string
	var steps int
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&steps, "steps", 1, "number of migrations to roll back with down")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	switch flag.Arg(0) {
	case "up":
		version, err := database.MigrateUp(db)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("schema at version %d\n", version)
	case "down":
		version, err := database.MigrateDown(db, steps)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("schema at version %d\n", version)
	case "version":
		version, dirty, err := database.SchemaVersion(db)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("schema at version %d (dirty: %t)\n", version, dirty)
	default:
		usage()
		os.Exit(2)
	}
}
