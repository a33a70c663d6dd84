// Package store is the minimal persistence contract the gateway needs:
// resolving authenticated users, persisting notifications, and reading
// notification unsubscriptions. It is not a general ORM layer.
package store

import (
	"context"
	"database/sql"
	"time"

	// Postgres driver, registered for database/sql.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("record not found")

// Open connects to Postgres and verifies the connection.
func Open(dsn string, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}

	log.Info("connected to postgres")
	return db, nil
}
