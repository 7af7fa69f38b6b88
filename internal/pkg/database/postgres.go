package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const pingTimeout = 5 * time.Second

// DB is the relational handle shared by the SQL repositories.
// Driver tells migrations which dialect to emit.
type DB struct {
	*sqlx.DB
	Driver string
}

// Open connects to the configured relational driver.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLite(dsn)
	default:
		return NewPostgres(dsn)
	}
}

// NewPostgres creates a PostgreSQL connection pool
func NewPostgres(databaseURL string) (*DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Msg("Connected to PostgreSQL")
	return &DB{DB: db, Driver: DriverPostgres}, nil
}

// Close closes the relational connection
func Close(db *DB) {
	if db == nil || db.DB == nil {
		return
	}
	if err := db.DB.Close(); err != nil {
		log.Error().Err(err).Str("driver", db.Driver).Msg("Error closing database connection")
		return
	}
	log.Info().Str("driver", db.Driver).Msg("Database connection closed")
}
