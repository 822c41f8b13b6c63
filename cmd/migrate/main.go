package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"community_bot/migrations"
)

func main() {
	driver := flag.String("driver", envOrDefault("DATABASE_DRIVER", "sqlite"), "database driver: sqlite or postgres")
	dsn := flag.String("db", "", "sqlite path or postgres URL (default from DATABASE_PATH / DATABASE_URL)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-driver sqlite|postgres] [-db dsn] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  up          Migrate to the latest version")
		fmt.Fprintln(os.Stderr, "  up-one      Migrate one version up")
		fmt.Fprintln(os.Stderr, "  down        Roll back one version")
		fmt.Fprintln(os.Stderr, "  status      Show migration status")
		fmt.Fprintln(os.Stderr, "  version     Show current version")
		fmt.Fprintln(os.Stderr, "  reset       Roll back all migrations")
		os.Exit(1)
	}

	sqlDriver, dialect, defaultDSN, err := resolve(*driver)
	if err != nil {
		log.Fatal(err)
	}
	if *dsn == "" {
		*dsn = defaultDSN
	}
	if *dsn == "" {
		log.Fatal("no database given: set -db or DATABASE_URL")
	}

	db, err := sql.Open(sqlDriver, *dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(dialect); err != nil {
		log.Fatal(err)
	}
	dir := dialect.Dir()

	cmd := args[0]
	switch cmd {
	case "up":
		err = goose.Up(db, dir)
	case "up-one":
		err = goose.UpByOne(db, dir)
	case "down":
		err = goose.Down(db, dir)
	case "status":
		err = goose.Status(db, dir)
	case "version":
		err = goose.Version(db, dir)
	case "reset":
		err = goose.Reset(db, dir)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}

	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// resolve maps a driver flag to the database/sql driver name, the goose
// dialect and the default DSN.
func resolve(driver string) (sqlDriver string, dialect migrations.Dialect, dsn string, err error) {
	switch driver {
	case "sqlite":
		return "sqlite", migrations.SQLite, envOrDefault("DATABASE_PATH", "./data/bot.db"), nil
	case "postgres":
		return "pgx", migrations.Postgres, os.Getenv("DATABASE_URL"), nil
	default:
		return "", "", "", fmt.Errorf("unknown driver %q", driver)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
