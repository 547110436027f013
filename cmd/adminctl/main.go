// adminctl bootstraps the back office: it creates an admin account, or
// promotes an existing one, directly against the database. Meant to be run
// once per deployment before the first admin logs in.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/dgavrilenko/shopkeeper/internal/common"
	"github.com/dgavrilenko/shopkeeper/internal/dbx"
	"github.com/dgavrilenko/shopkeeper/internal/server/config"
	"github.com/dgavrilenko/shopkeeper/internal/server/models"
	"github.com/dgavrilenko/shopkeeper/internal/server/passwd"
	"github.com/dgavrilenko/shopkeeper/internal/server/repositories/repomanager"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "adminctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		email = flag.String("email", "", "admin account email (required)")
		name  = flag.String("name", "Administrator", "display name for a newly created account")
		dsn   = flag.String("d", "", "database dsn (defaults to server configuration)")
	)
	flag.Parse()

	if *email == "" {
		return errors.New("-email is required")
	}

	databaseDSN := *dsn
	if databaseDSN == "" {
		databaseDSN = config.LoadConfig().DatabaseDSN
	}

	db, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	users := rm.Users(db)

	existing, err := users.GetByEmail(ctx, *email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			fmt.Printf("%s is already an admin\n", *email)
			return nil
		}
		existing.Role = models.RoleAdmin
		if err := users.Update(ctx, existing); err != nil {
			return fmt.Errorf("promote error: %w", err)
		}
		fmt.Printf("promoted %s to admin\n", *email)
		return nil

	case errors.Is(err, common.ErrNotFound):
		// fall through to account creation

	default:
		return fmt.Errorf("lookup error: %w", err)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hashed, err := passwd.Hash(password)
	if err != nil {
		return fmt.Errorf("password hashing error: %w", err)
	}

	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := rm.Users(tx).Create(ctx, &models.User{
			Name:           *name,
			Email:          *email,
			HashedPassword: hashed,
			Role:           models.RoleAdmin,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("create error: %w", err)
	}

	fmt.Printf("created admin account %s\n", *email)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("password read error: %w", err)
	}

	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("password read error: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
