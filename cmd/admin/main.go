// Command admin creates an administrator account or promotes an existing
// one. The password is read from the terminal without echo.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/obs"
	"promptdesk.dev/internal/store/pg"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		dsn   = flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
		email = flag.String("email", "", "Account email")
		name  = flag.String("name", "", "Display name for a new account")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if strings.TrimSpace(*email) == "" {
		log.Fatal("usage: admin -email user@example.com [-name Name]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn, 2)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	accounts, err := auth.NewAccountService(store, auth.NewHasher(0, 0), nil, obs.Logger())
	if err != nil {
		log.Fatal(err)
	}
	if err := ensureAdmin(ctx, accounts, *email, *name, os.Stdout); err != nil {
		log.Fatalf("admin: %v", err)
	}
}

func ensureAdmin(ctx context.Context, accounts *auth.AccountService, email, name string, w io.Writer) error {
	password, err := promptPassword(w)
	if err != nil {
		return err
	}
	acc, changed, err := accounts.EnsureAdmin(ctx, email, password, name)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintf(w, "%s is already an admin (%s)\n", acc.Email, acc.ID)
		return nil
	}
	fmt.Fprintf(w, "%s is now an admin (%s)\n", acc.Email, acc.ID)
	return nil
}

// promptPassword asks twice and requires both entries to match.
func promptPassword(w io.Writer) (string, error) {
	first, err := readLine(w, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := readLine(w, "Repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	if first == "" {
		return "", errors.New("password must not be empty")
	}
	return first, nil
}

func readLine(w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
