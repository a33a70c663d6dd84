package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/crewdeck/relay/pkg/shortid"
)

// User is the authenticated principal behind a connection. IDs are
// internal snowflake identifiers; external surfaces only ever see the
// short-code form.
type User struct {
	ID       uint64
	Email    string
	Name     string
	Language string
}

// ShortID returns the externally exposed form of the user id.
func (u *User) ShortID() string {
	return shortid.ToShortCode(u.ID)
}

// UserStore resolves token subjects to persisted users.
type UserStore interface {
	// GetByShortID resolves a short-code user id. Returns ErrNotFound when
	// the code is malformed or no such user exists.
	GetByShortID(ctx context.Context, code string) (*User, error)
}

// UserRepository is the Postgres-backed UserStore.
type UserRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewUserRepository(db *sql.DB, log *zap.Logger) *UserRepository {
	return &UserRepository{db: db, log: log.With(zap.String("module", "user_repository"))}
}

func (r *UserRepository) GetByShortID(ctx context.Context, code string) (*User, error) {
	id := shortid.FromShortCode(code)
	if id == 0 {
		return nil, ErrNotFound
	}

	u := &User{}
	var language sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, language FROM users WHERE id = $1`, int64(id),
	).Scan(&u.ID, &u.Email, &u.Name, &language)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query user")
	}
	if language.Valid {
		u.Language = language.String
	}
	return u, nil
}
