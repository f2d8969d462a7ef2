// Package db is the Postgres store for jobs, episodes and the per category
// sequence counters.
package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The database driver
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/models"
)

// DB is the global database connection.
var DB *sqlx.DB

// InitDB opens and pings the connection and stores it in DB.
func InitDB(databaseURL string) error {
	if databaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	conn, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	DB = conn
	log.Info().Msg("Database connection established")
	return nil
}

// Store implements the job and episode stores on top of one connection.
type Store struct {
	db *sqlx.DB
}

// New wraps conn. Pass DB after InitDB.
func New(conn *sqlx.DB) *Store {
	return &Store{db: conn}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func rollback(tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Warn().Err(err).Msg("Rollback failed")
	}
}
