package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"stylebff/internal/adapter/repo"
	"stylebff/internal/infra"
	"stylebff/internal/ledger"
)

func main() {
	var (
		accountFlag string
		amountFlag  int
	)
	flag.StringVar(&accountFlag, "account", "", "account ID to credit (UUID)")
	flag.IntVar(&amountFlag, "amount", 0, "credits to add (negative values deduct)")
	flag.Parse()

	accountID, err := parseAccount(accountFlag)
	if err != nil {
		exitWithError(err)
	}
	if amountFlag == 0 {
		exitWithError(errors.New("-amount must be non-zero"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	reconciler := ledger.NewReconciler(repo.NewLedger(infra.NewSQLRunner(pool, logger)), logger)

	balance, err := reconciler.Grant(ctx, accountID, amountFlag)
	if err != nil {
		exitWithError(fmt.Errorf("grant failed: %w", err))
	}
	fmt.Printf("account %s balance is now %d credits\n", accountID, balance)
}

func parseAccount(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("-account is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid -account %q: %w", raw, err)
	}
	return id.String(), nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
