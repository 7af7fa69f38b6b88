// Package cli implements the pawtrait operator command.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pawtrait/pawtrait-api/internal/config"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
	"github.com/pawtrait/pawtrait-api/internal/pkg/logger"
)

// options are the persistent flags shared by every command
type options struct {
	driver      string
	databaseURL string
	ledgerStore string
	logLevel    string
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree. Flags default to the environment.
func NewRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	root := &cobra.Command{
		Use:   "pawtrait",
		Short: "Operate the Pawtrait credit ledger",
		Long: `Operator tooling for the Pawtrait API: apply database migrations and
inspect or correct credit balances. Every balance change goes through the
same ledger the API uses, so idempotency keys behave identically.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := logger.Init(logger.Config{Level: opts.logLevel, Environment: cfg.Env})
			return err
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.driver, "db-driver", cfg.DBDriver, "Relational driver (postgres or sqlite)")
	flags.StringVar(&opts.databaseURL, "database-url", cfg.DatabaseURL, "Database DSN or SQLite path")
	flags.StringVar(&opts.ledgerStore, "ledger-store", cfg.LedgerStore, "Ledger backend (sql or mongo)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newCreditsCmd(cfg, opts))
	return root
}

func openDB(opts *options) (*database.DB, error) {
	db, err := database.Open(opts.driver, opts.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// openLedger returns the ledger and a cleanup func
func openLedger(ctx context.Context, cfg *config.Config, opts *options) (credit.Service, func(), error) {
	switch opts.ledgerStore {
	case config.LedgerStoreMongo:
		client, mdb, err := database.NewMongo(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		store := credit.NewMongoStore(client, mdb)
		if err := store.EnsureIndexes(ctx); err != nil {
			database.CloseMongo(client)
			return nil, nil, err
		}
		return credit.NewService(store), func() { database.CloseMongo(client) }, nil
	case config.LedgerStoreSQL, "":
		db, err := openDB(opts)
		if err != nil {
			return nil, nil, err
		}
		return credit.NewService(credit.NewSQLStore(db.DB)), func() { database.Close(db) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger store %q", opts.ledgerStore)
	}
}
