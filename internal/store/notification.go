package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/crewdeck/relay/pkg/shortid"
)

// Notification is one persisted notification record.
type Notification struct {
	ID        uint64                 `json:"-"`
	UserID    uint64                 `json:"-"`
	Type      string                 `json:"type"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ShortID returns the externally exposed form of the notification id.
func (n *Notification) ShortID() string {
	return shortid.ToShortCode(n.ID)
}

// NotificationStore persists notification records. Create always assigns
// its own identifier; any pre-assigned id on the input is discarded.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) (*Notification, error)
}

// NotificationRepository is the Postgres-backed NotificationStore.
type NotificationRepository struct {
	db  *sql.DB
	log *zap.Logger
	gen *shortid.Generator
}

func NewNotificationRepository(db *sql.DB, log *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:  db,
		log: log.With(zap.String("module", "notification_repository")),
		gen: shortid.NewGenerator(),
	}
}

func (r *NotificationRepository) Create(ctx context.Context, n *Notification) (*Notification, error) {
	created := *n
	created.ID = r.gen.Next()
	created.CreatedAt = time.Now().UTC()

	var data []byte
	if created.Data != nil {
		var err error
		data, err = json.Marshal(created.Data)
		if err != nil {
			return nil, errors.Wrap(err, "marshal notification data")
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, body, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		int64(created.ID), int64(created.UserID), created.Type, created.Title, created.Body,
		nullableJSON(data), created.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert notification")
	}
	return &created, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
