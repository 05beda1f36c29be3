package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/payin-api/internal/config"
	"github.com/mwork/payin-api/internal/domain/wallet"
	"github.com/mwork/payin-api/internal/pkg/database"
	"github.com/mwork/payin-api/internal/pkg/jwt"
)

func main() {
	mintFor := flag.String("mint-service-token", "", "print a service-role access token for this caller id and exit")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall audit timeout")
	flag.Parse()

	cfg := config.Load()

	if *mintFor != "" {
		if err := mintToken(os.Stdout, cfg, *mintFor); err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePostgres(db)

	svc := wallet.NewService(wallet.NewRepository(db))
	broken, err := audit(ctx, os.Stdout, svc)
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}
	if broken > 0 {
		os.Exit(1)
	}
}

type auditor interface {
	VerifyAll(ctx context.Context) (int, []*wallet.Audit, error)
}

// audit prints one line per inconsistent wallet and returns how many there were.
func audit(ctx context.Context, out io.Writer, svc auditor) (int, error) {
	checked, broken, err := svc.VerifyAll(ctx)
	if err != nil {
		return 0, err
	}

	fmt.Fprintln(out, "--- Ledger audit ---")
	for _, a := range broken {
		fmt.Fprintf(out, "MISMATCH wallet=%s owner=%s currency=%s balance=%s ledger=%s entries=%d\n",
			a.WalletID, a.OwnerID, a.Currency, a.Balance, a.LedgerSum, a.Entries)
	}
	fmt.Fprintf(out, "checked=%d inconsistent=%d\n", checked, len(broken))
	fmt.Fprintln(out, "--------------------")
	return len(broken), nil
}

func mintToken(out io.Writer, cfg *config.Config, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid caller id: %w", err)
	}
	svc := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	token, err := svc.GenerateAccessToken(id, jwt.RoleService)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	log.Printf("Service token for %s expires in %s", id, svc.GetAccessTTL())
	return nil
}
