package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"

	"github.com/ignite/campaign-warehouse/internal/config"
	"github.com/ignite/campaign-warehouse/internal/db"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	listOnly := flag.Bool("list", false, "list embedded migrations and the applied version, then exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	driver := cfg.Database.Driver
	if driver == "" {
		driver = db.DriverSQLite
	}

	conn, err := db.Open(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s database", driver)

	if *listOnly {
		files, err := db.Migrations(driver)
		if err != nil {
			log.Fatal(err)
		}
		for _, f := range files {
			fmt.Println(" ", f)
		}
		fmt.Printf("Total: %d migrations\n", len(files))
		printVersion(conn, driver)
		return
	}

	if err := db.Migrate(conn, driver); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	printVersion(conn, driver)
}

func printVersion(conn *sql.DB, driver string) {
	v, dirty, err := db.Version(conn, driver)
	if err != nil {
		log.Fatalf("version: %v", err)
	}
	if dirty {
		fmt.Printf("Schema version: %d (dirty)\n", v)
		return
	}
	fmt.Printf("Schema version: %d\n", v)
}
