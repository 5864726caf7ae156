// Command migrate applies the embedded schema and fixture scripts.
//
//	migrate [-dsn DSN] [-migrations DIR] [-seeds DIR] up|down|seed|status
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"coursedesk.org/internal/migrate"
)

type command func(*migrate.Manager, context.Context) ([]string, error)

var commands = map[string]command{
	"up":     (*migrate.Manager).Up,
	"seed":   (*migrate.Manager).Seed,
	"status": (*migrate.Manager).Status,
	"down": func(m *migrate.Manager, ctx context.Context) ([]string, error) {
		name, err := m.Down(ctx)
		if err != nil || name == "" {
			return nil, err
		}
		return []string{name}, nil
	},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fset := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := fset.String("dsn", os.Getenv("COURSEDESK_DATABASE_DSN"), "PostgreSQL DSN")
	migrationsDir := fset.String("migrations", "", "read migrations from this directory instead of the embedded set")
	seedsDir := fset.String("seeds", "", "read seeds from this directory instead of the embedded set")
	timeout := fset.Duration("timeout", time.Minute, "overall deadline")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if fset.NArg() != 1 {
		return errors.New("usage: migrate [flags] up|down|seed|status")
	}
	name := fset.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	if *dsn == "" {
		return errors.New("no DSN: pass -dsn or set COURSEDESK_DATABASE_DSN")
	}

	migrations, seeds := migrate.Embedded()
	migrations = dirOr(*migrationsDir, migrations)
	seeds = dirOr(*seedsDir, seeds)

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	names, err := cmd(migrate.NewManager(db, migrations, seeds), ctx)
	for _, n := range names {
		fmt.Println(n)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(names) == 0 && name != "status" {
		fmt.Println("nothing to do")
	}
	return nil
}

func dirOr(dir string, fallback fs.FS) fs.FS {
	if dir == "" {
		return fallback
	}
	return os.DirFS(dir)
}
