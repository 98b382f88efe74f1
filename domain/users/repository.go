package users

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tahopetis/crate/internal/database"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
)

// bootstrapLockKey serializes registrations so that exactly one first user
// becomes admin.
const bootstrapLockKey = 0x63726174

// Store persists user accounts.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SearchByEmail(ctx context.Context, q string, excludeID *uuid.UUID, limit int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}

// Repository handles database operations for users
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new users repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("users.repo")),
	}
}

// Create inserts u. When no user exists yet, u is stored as an administrator
// and u.IsAdmin is set accordingly.
func (r *Repository) Create(ctx context.Context, u *User) error {
	return database.WithTx(ctx, r.db, func(tx bun.IDB) error {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(?)", bootstrapLockKey).Exec(ctx); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		n, err := tx.NewSelect().Model((*User)(nil)).Count(ctx)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		u.IsAdmin = u.IsAdmin || n == 0

		if _, err := tx.NewInsert().Model(u).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err, "users_email_idx") {
				return apperror.NewConflict("a user with this email already exists")
			}
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u := new(User)
	err := r.db.NewSelect().Model(u).Where("u.id = ?", id).Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("User", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return u, nil
}

// GetByEmail matches email case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	u := new(User)
	err := r.db.NewSelect().
		Model(u).
		Where("lower(u.email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("User", email)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return u, nil
}

// SearchByEmail finds active users whose email contains q.
func (r *Repository) SearchByEmail(ctx context.Context, q string, excludeID *uuid.UUID, limit int) ([]SearchResult, error) {
	results := []SearchResult{}
	query := r.db.NewSelect().
		TableExpr("cmdb.users AS u").
		ColumnExpr("u.id, u.email, u.first_name, u.last_name").
		Where("u.email ILIKE ?", "%"+q+"%").
		Where("u.is_active").
		OrderExpr("u.email ASC").
		Limit(limit)
	if excludeID != nil {
		query = query.Where("u.id <> ?", *excludeID)
	}
	if err := query.Scan(ctx, &results); err != nil {
		r.log.Error("failed to search users by email", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return results, nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	n, err := r.db.NewSelect().Model((*User)(nil)).Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}
