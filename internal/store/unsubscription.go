package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelEmail  Channel = "email"
	ChannelMobile Channel = "mobile"
	ChannelIoT    Channel = "iot"
)

// UnsubscriptionStore answers whether a user has opted out of a
// notification type on a delivery channel. An all-scope record suppresses
// every instance of the type; a specific-scope record suppresses only
// notifications concerning the named resource.
type UnsubscriptionStore interface {
	IsUnsubscribedAll(ctx context.Context, userID uint64, ch Channel, notificationType string) (bool, error)
	IsUnsubscribedFrom(ctx context.Context, userID uint64, ch Channel, notificationType, table, refID string) (bool, error)
}

// UnsubscriptionRepository is the Postgres-backed UnsubscriptionStore.
type UnsubscriptionRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewUnsubscriptionRepository(db *sql.DB, log *zap.Logger) *UnsubscriptionRepository {
	return &UnsubscriptionRepository{db: db, log: log.With(zap.String("module", "unsubscription_repository"))}
}

func (r *UnsubscriptionRepository) IsUnsubscribedAll(ctx context.Context, userID uint64, ch Channel, notificationType string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM notification_unsubscriptions
			WHERE user_id = $1 AND channel = $2 AND notification_type = $3 AND ref_table IS NULL
		)`,
		int64(userID), string(ch), notificationType,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "query all-scope unsubscription")
	}
	return exists, nil
}

func (r *UnsubscriptionRepository) IsUnsubscribedFrom(ctx context.Context, userID uint64, ch Channel, notificationType, table, refID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM notification_unsubscriptions
			WHERE user_id = $1 AND channel = $2 AND notification_type = $3
			  AND ref_table = $4 AND ref_id = $5
		)`,
		int64(userID), string(ch), notificationType, table, refID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "query specific-scope unsubscription")
	}
	return exists, nil
}
