package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/tahopetis/crate/internal/database"
	"github.com/tahopetis/crate/pkg/apperror"
	"github.com/tahopetis/crate/pkg/logger"
)

// Store persists lifecycle definitions and CI type mappings. Lifecycle types
// are soft-deleted; states and transitions are removed outright.
type Store interface {
	CreateType(ctx context.Context, t *Type) error
	GetType(ctx context.Context, id uuid.UUID) (*Type, error)
	TypeNameExists(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error)
	UpdateType(ctx context.Context, t *Type) error
	SoftDeleteType(ctx context.Context, id uuid.UUID) error
	ListTypes(ctx context.Context, includeInactive bool) ([]Summary, error)
	CountMappings(ctx context.Context, typeID uuid.UUID) (int, error)

	States(ctx context.Context, typeID uuid.UUID) ([]State, error)
	CreateState(ctx context.Context, s *State) error
	GetState(ctx context.Context, id uuid.UUID) (*State, error)
	UpdateState(ctx context.Context, s *State) error
	DeleteState(ctx context.Context, id uuid.UUID) error
	StateNameExists(ctx context.Context, typeID uuid.UUID, name string, excludeID *uuid.UUID) (bool, error)
	StateOrderExists(ctx context.Context, typeID uuid.UUID, order int, excludeID *uuid.UUID) (bool, error)
	InitialStateExists(ctx context.Context, typeID uuid.UUID, excludeID *uuid.UUID) (bool, error)
	StateInUse(ctx context.Context, stateID uuid.UUID) (bool, error)

	Transitions(ctx context.Context, typeID uuid.UUID) ([]Transition, error)
	CreateTransition(ctx context.Context, t *Transition) error
	DeleteTransition(ctx context.Context, id uuid.UUID) error
	TransitionExists(ctx context.Context, typeID uuid.UUID, from *uuid.UUID, to uuid.UUID) (bool, error)

	CITypeExists(ctx context.Context, id uuid.UUID) (bool, error)
	UpsertMapping(ctx context.Context, m *Mapping) error
	DeleteMapping(ctx context.Context, id uuid.UUID) (*Mapping, error)
	ListForCIType(ctx context.Context, ciTypeID uuid.UUID) ([]Summary, error)

	CountTypes(ctx context.Context) (int, error)
}

// Repository is the PostgreSQL Store.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new lifecycle repository
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("lifecycle.repo")),
	}
}

func live(q *bun.SelectQuery, alias string) *bun.SelectQuery {
	return q.Where("?.deleted_at IS NULL", bun.Ident(alias))
}

// excluding drops the row with id excludeID, so update checks ignore the
// entity being updated.
func excluding(q *bun.SelectQuery, column string, excludeID *uuid.UUID) *bun.SelectQuery {
	if excludeID == nil {
		return q
	}
	return q.Where("? <> ?", bun.Ident(column), *excludeID)
}

func stateConstraintError(err error) error {
	switch {
	case database.IsUniqueViolation(err, "lifecycle_states_name_key"):
		return apperror.NewValidation("a state with this name already exists in the lifecycle")
	case database.IsUniqueViolation(err, "lifecycle_states_order_key"):
		return apperror.NewValidation("a state with this order_index already exists in the lifecycle")
	case database.IsUniqueViolation(err, "lifecycle_states_single_initial_idx"):
		return apperror.NewValidation("the lifecycle already has an initial state")
	}
	return apperror.ErrDatabase.WithInternal(err)
}

func (r *Repository) CreateType(ctx context.Context, t *Type) error {
	if _, err := r.db.NewInsert().Model(t).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err, "lifecycle_types_name_live_idx") {
			return apperror.NewValidation("a lifecycle type with this name already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) GetType(ctx context.Context, id uuid.UUID) (*Type, error) {
	t := new(Type)
	err := live(r.db.NewSelect().Model(t), "lt").Where("lt.id = ?", id).Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("Lifecycle type", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return t, nil
}

func (r *Repository) TypeNameExists(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	q := live(r.db.NewSelect().Model((*Type)(nil)), "lt").Where("lt.name = ?", name)
	exists, err := excluding(q, "lt.id", excludeID).Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

func (r *Repository) UpdateType(ctx context.Context, t *Type) error {
	res, err := r.db.NewUpdate().
		Model(t).
		Column("name", "description", "default_color", "is_active", "updated_at").
		WherePK().
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err, "lifecycle_types_name_live_idx") {
			return apperror.NewValidation("a lifecycle type with this name already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Lifecycle type", t.ID.String())
	}
	return nil
}

func (r *Repository) SoftDeleteType(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*Type)(nil)).
		Set("deleted_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Lifecycle type", id.String())
	}
	return nil
}

const summarySelect = `
SELECT lt.id, lt.name, lt.description, lt.default_color, lt.is_active, lt.created_at,
       (SELECT count(*) FROM cmdb.lifecycle_states ls WHERE ls.lifecycle_type_id = lt.id) AS state_count,
       (SELECT count(*) FROM cmdb.ci_type_lifecycles m
          JOIN cmdb.ci_types ct ON ct.id = m.ci_type_id AND ct.deleted_at IS NULL
         WHERE m.lifecycle_type_id = lt.id) AS ci_type_count`

func (r *Repository) ListTypes(ctx context.Context, includeInactive bool) ([]Summary, error) {
	out := []Summary{}
	err := r.db.NewRaw(summarySelect+`,
       false AS is_default
FROM cmdb.lifecycle_types lt
WHERE lt.deleted_at IS NULL AND (? OR lt.is_active)
ORDER BY lt.name`, includeInactive).Scan(ctx, &out)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}

func (r *Repository) CountMappings(ctx context.Context, typeID uuid.UUID) (int, error) {
	n, err := r.db.NewSelect().
		Model((*Mapping)(nil)).
		Join("JOIN cmdb.ci_types AS ct ON ct.id = ctl.ci_type_id").
		Where("ctl.lifecycle_type_id = ?", typeID).
		Where("ct.deleted_at IS NULL").
		Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}

func (r *Repository) States(ctx context.Context, typeID uuid.UUID) ([]State, error) {
	states := []State{}
	err := r.db.NewSelect().
		Model(&states).
		Where("ls.lifecycle_type_id = ?", typeID).
		Order("ls.order_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return states, nil
}

func (r *Repository) CreateState(ctx context.Context, s *State) error {
	if _, err := r.db.NewInsert().Model(s).Exec(ctx); err != nil {
		return stateConstraintError(err)
	}
	return nil
}

func (r *Repository) GetState(ctx context.Context, id uuid.UUID) (*State, error) {
	s := new(State)
	err := r.db.NewSelect().
		Model(s).
		Join("JOIN cmdb.lifecycle_types AS lt ON lt.id = ls.lifecycle_type_id").
		Where("ls.id = ?", id).
		Where("lt.deleted_at IS NULL").
		Scan(ctx)
	if database.IsNoRows(err) {
		return nil, apperror.NewNotFound("Lifecycle state", id.String())
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return s, nil
}

func (r *Repository) UpdateState(ctx context.Context, s *State) error {
	res, err := r.db.NewUpdate().
		Model(s).
		Column("name", "description", "color", "order_index", "is_initial_state", "is_terminal_state", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return stateConstraintError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Lifecycle state", s.ID.String())
	}
	return nil
}

func (r *Repository) DeleteState(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().Model((*State)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperror.NewValidation("state is referenced by a transition")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Lifecycle state", id.String())
	}
	return nil
}

func (r *Repository) stateExists(ctx context.Context, q *bun.SelectQuery) (bool, error) {
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

func (r *Repository) StateNameExists(ctx context.Context, typeID uuid.UUID, name string, excludeID *uuid.UUID) (bool, error) {
	q := r.db.NewSelect().Model((*State)(nil)).
		Where("ls.lifecycle_type_id = ?", typeID).
		Where("ls.name = ?", name)
	return r.stateExists(ctx, excluding(q, "ls.id", excludeID))
}

func (r *Repository) StateOrderExists(ctx context.Context, typeID uuid.UUID, order int, excludeID *uuid.UUID) (bool, error) {
	q := r.db.NewSelect().Model((*State)(nil)).
		Where("ls.lifecycle_type_id = ?", typeID).
		Where("ls.order_index = ?", order)
	return r.stateExists(ctx, excluding(q, "ls.id", excludeID))
}

func (r *Repository) InitialStateExists(ctx context.Context, typeID uuid.UUID, excludeID *uuid.UUID) (bool, error) {
	q := r.db.NewSelect().Model((*State)(nil)).
		Where("ls.lifecycle_type_id = ?", typeID).
		Where("ls.is_initial_state")
	return r.stateExists(ctx, excluding(q, "ls.id", excludeID))
}

func (r *Repository) StateInUse(ctx context.Context, stateID uuid.UUID) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*Transition)(nil)).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("ltr.from_state_id = ?", stateID).WhereOr("ltr.to_state_id = ?", stateID)
		}).
		Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

func (r *Repository) Transitions(ctx context.Context, typeID uuid.UUID) ([]Transition, error) {
	out := []Transition{}
	err := r.db.NewSelect().
		Model(&out).
		ColumnExpr("ltr.*").
		ColumnExpr("fs.name AS from_state_name").
		ColumnExpr("ts.name AS to_state_name").
		Join("LEFT JOIN cmdb.lifecycle_states AS fs ON fs.id = ltr.from_state_id").
		Join("JOIN cmdb.lifecycle_states AS ts ON ts.id = ltr.to_state_id").
		Where("ltr.lifecycle_type_id = ?", typeID).
		OrderExpr("fs.order_index ASC NULLS FIRST, ts.order_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}

func (r *Repository) CreateTransition(ctx context.Context, t *Transition) error {
	if _, err := r.db.NewInsert().Model(t).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err, "lifecycle_transitions_pair_idx") {
			return apperror.NewValidation("this transition already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func (r *Repository) DeleteTransition(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().Model((*Transition)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Lifecycle transition", id.String())
	}
	return nil
}

func (r *Repository) TransitionExists(ctx context.Context, typeID uuid.UUID, from *uuid.UUID, to uuid.UUID) (bool, error) {
	q := r.db.NewSelect().Model((*Transition)(nil)).
		Where("ltr.lifecycle_type_id = ?", typeID).
		Where("ltr.to_state_id = ?", to)
	if from == nil {
		q = q.Where("ltr.from_state_id IS NULL")
	} else {
		q = q.Where("ltr.from_state_id = ?", *from)
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

func (r *Repository) CITypeExists(ctx context.Context, id uuid.UUID) (bool, error) {
	exists, err := r.db.NewSelect().
		TableExpr("cmdb.ci_types AS ct").
		Where("ct.id = ?", id).
		Where("ct.deleted_at IS NULL").
		Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

// UpsertMapping inserts or updates the (ci_type, lifecycle_type) mapping. A
// default mapping first clears any other default of the same CI type, in the
// same transaction.
func (r *Repository) UpsertMapping(ctx context.Context, m *Mapping) error {
	return database.WithTx(ctx, r.db, func(tx bun.IDB) error {
		if m.IsDefault {
			_, err := tx.NewUpdate().
				Model((*Mapping)(nil)).
				Set("is_default = false").
				Where("ci_type_id = ?", m.CITypeID).
				Where("lifecycle_type_id <> ?", m.LifecycleTypeID).
				Where("is_default").
				Exec(ctx)
			if err != nil {
				return apperror.ErrDatabase.WithInternal(err)
			}
		}
		_, err := tx.NewInsert().
			Model(m).
			On("CONFLICT (ci_type_id, lifecycle_type_id) DO UPDATE").
			Set("is_default = EXCLUDED.is_default").
			Returning("*").
			Exec(ctx)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}

// DeleteMapping removes a mapping and returns the removed row.
func (r *Repository) DeleteMapping(ctx context.Context, id uuid.UUID) (*Mapping, error) {
	m := new(Mapping)
	res, err := r.db.NewDelete().Model(m).Where("id = ?", id).Returning("*").Exec(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NewNotFound("Lifecycle mapping", id.String())
	}
	return m, nil
}

func (r *Repository) ListForCIType(ctx context.Context, ciTypeID uuid.UUID) ([]Summary, error) {
	out := []Summary{}
	err := r.db.NewRaw(summarySelect+`,
       m.is_default
FROM cmdb.ci_type_lifecycles m
JOIN cmdb.lifecycle_types lt ON lt.id = m.lifecycle_type_id
WHERE m.ci_type_id = ? AND lt.deleted_at IS NULL AND lt.is_active
ORDER BY m.is_default DESC, lt.name`, ciTypeID).Scan(ctx, &out)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return out, nil
}

func (r *Repository) CountTypes(ctx context.Context) (int, error) {
	n, err := live(r.db.NewSelect().Model((*Type)(nil)), "lt").Count(ctx)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return n, nil
}
