package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"adminhub.org/internal/auth"
	"adminhub.org/internal/migrate"
	"adminhub.org/internal/rbac"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("ADMINHUB_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
		adminUser      = flag.String("admin-username", "admin", "Superuser name for the admin command")
		adminPassword  = flag.String("admin-password", "", "Superuser password for the admin command")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or ADMINHUB_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|admin]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "admin":
		err = seedAdmin(ctx, db, *adminUser, *adminPassword)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// seedAdmin creates the superuser account if it does not exist yet. Lives
// here rather than in a SQL seed because password hashes are computed, not
// stored as literals.
func seedAdmin(ctx context.Context, db *sql.DB, username, password string) error {
	if password == "" {
		return errors.New("admin password is required: provide via -admin-password")
	}
	if err := auth.ValidatePasswordStrength(password, 8); err != nil {
		return err
	}
	store := rbac.NewSQLStore(db)
	if _, err := store.Users().FindByUsername(ctx, username); err == nil {
		log.Printf("superuser %q already exists", username)
		return nil
	} else if !errors.Is(err, rbac.ErrNotFound) {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user := &rbac.User{
		Username:     username,
		Nickname:     username,
		PasswordHash: hash,
		IsActive:     true,
		IsSuperuser:  true,
	}
	if err := store.Users().Create(ctx, user); err != nil {
		return err
	}
	log.Printf("superuser %q created (id %d)", username, user.ID)
	return nil
}
