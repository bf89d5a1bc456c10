// Package pgstore is a board store reading the clinic tables straight from Postgres.
package pgstore

import (
	"context"
	_ "embed"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"
)

//go:embed schema.sql
var schema string

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type txKey struct{}

// WithTx makes every call using ctx run inside tx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

type Store struct {
	pool     *pgxpool.Pool
	clinicID string
}

// Open connects to dsn. clinicID restricts the board to one clinic when set.
func Open(ctx context.Context, dsn, clinicID string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pool")
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()

		return nil, errors.Wrap(err, "unable to reach database")
	}

	return New(pool, clinicID), nil
}

func New(pool *pgxpool.Pool, clinicID string) *Store {
	return &Store{pool: pool, clinicID: clinicID}
}

func (s *Store) conn(ctx context.Context) queryable {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return tx
	}

	return s.pool
}

// inTx runs fn in the transaction of ctx, or in a new one committed when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok && tx != nil {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = fn(WithTx(ctx, tx))
	if err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(ctx), "unable to commit")
}

// uniqueViolation is the Postgres error code of a duplicate key.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.conn(ctx).Exec(ctx, schema)

	return errors.Wrap(err, "unable to create schema")
}

const patientCols = `p.id::text, p.user_id, p.created_at, p.name, p.cpf, p.phone, p.email, p.status,
	p.treatment_value::text, p.description, COALESCE(t.name, '')`

func scanItem(row pgx.Row) (model.Item, error) {
	var (
		it          model.Item
		value       string
		email, desc *string
	)

	err := row.Scan(&it.ID, &it.UserID, &it.CreatedAt, &it.Name, &it.CPF, &it.Phone, &email, &it.Stage,
		&value, &desc, &it.Treatment)
	if err != nil {
		return model.Item{}, err
	}

	it.Value, err = decimal.NewFromString(value)
	if err != nil {
		return model.Item{}, errors.Wrapf(err, "invalid value of patient %q", it.ID)
	}
	if email != nil {
		it.Email = *email
	}
	if desc != nil {
		it.Description = *desc
	}

	return it, nil
}

func (s *Store) FetchItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+patientCols+`
		FROM patients p LEFT JOIN treatments t ON t.id = p.treatment_id
		WHERE $1 = '' OR p.clinic_id = $1
		ORDER BY p.created_at DESC`, s.clinicID)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list patients")
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan patient")
		}
		items = append(items, it)
	}

	return items, errors.Wrap(rows.Err(), "unable to list patients")
}

func (s *Store) FetchStages(ctx context.Context) ([]model.Stage, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT id::text, clinic_id, name, "order", color
		FROM kanban_stages
		WHERE $1 = '' OR clinic_id = $1
		ORDER BY "order" ASC`, s.clinicID)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list stages")
	}
	defer rows.Close()

	var stages []model.Stage
	for rows.Next() {
		var st model.Stage
		err := rows.Scan(&st.ID, &st.ClinicID, &st.Name, &st.Order, &st.Color)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan stage")
		}
		stages = append(stages, st)
	}

	return stages, errors.Wrap(rows.Err(), "unable to list stages")
}

// UpdateItemStage sets the status of a patient. The stage must exist.
func (s *Store) UpdateItemStage(ctx context.Context, id, stage string) error {
	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE patients SET status = $2, updated_at = NOW()
		WHERE id::text = $1 AND ($3 = '' OR clinic_id = $3)
		  AND EXISTS (SELECT 1 FROM kanban_stages WHERE name = $2 AND ($3 = '' OR clinic_id = $3))`,
		id, stage, s.clinicID)
	if err != nil {
		return errors.Wrapf(err, "unable to update patient %q", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patients WHERE id::text = $1 AND ($2 = '' OR clinic_id = $2))`,
		id, s.clinicID).Scan(&exists)
	if err != nil {
		return errors.Wrapf(err, "unable to check patient %q", id)
	}
	if !exists {
		return errors.Wrapf(store.ErrNotFound, "patient %q", id)
	}

	return errors.Wrapf(store.ErrUnknownStage, "stage %q", stage)
}

func (s *Store) CreateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	stage.ID = uuid.NewString()
	if stage.ClinicID == "" {
		stage.ClinicID = s.clinicID
	}

	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO kanban_stages (id, clinic_id, name, "order", color)
		VALUES ($1, $2, $3, $4, $5)`,
		stage.ID, stage.ClinicID, stage.Name, stage.Order, stage.Color)
	if isUniqueViolation(err) {
		return model.Stage{}, errors.Wrapf(store.ErrStageExists, "stage %q", stage.Name)
	}
	if err != nil {
		return model.Stage{}, errors.Wrapf(err, "unable to create stage %q", stage.Name)
	}

	return stage, nil
}

// CreateItem inserts a patient, creating its treatment by name when needed.
func (s *Store) CreateItem(ctx context.Context, it model.Item) (model.Item, error) {
	it.ID = uuid.NewString()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}

	var treatmentID *string
	if it.Treatment != "" {
		var id string
		err := s.conn(ctx).QueryRow(ctx, `
			INSERT INTO treatments (id, name) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id::text`, uuid.NewString(), it.Treatment).Scan(&id)
		if err != nil {
			return model.Item{}, errors.Wrapf(err, "unable to create treatment %q", it.Treatment)
		}
		treatmentID = &id
	}

	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, clinic_id, name, cpf, phone, email, status, treatment_value,
			treatment_id, description, created_at, user_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6::text, ''), $7, $8::numeric, $9::uuid, NULLIF($10::text, ''), $11, $12)`,
		it.ID, s.clinicID, it.Name, it.CPF, it.Phone, it.Email, it.Stage, it.Value.String(),
		treatmentID, it.Description, it.CreatedAt, it.UserID)
	if err != nil {
		return model.Item{}, errors.Wrapf(err, "unable to create patient %q", it.Name)
	}

	return it, nil
}

func (s *Store) stageByID(ctx context.Context, id string) (model.Stage, error) {
	var st model.Stage
	err := s.conn(ctx).QueryRow(ctx, `SELECT id::text, clinic_id, name, "order", color
		FROM kanban_stages
		WHERE id::text = $1 AND ($2 = '' OR clinic_id = $2)
		FOR UPDATE`, id, s.clinicID).Scan(&st.ID, &st.ClinicID, &st.Name, &st.Order, &st.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Stage{}, errors.Wrapf(store.ErrNotFound, "stage %q", id)
	}

	return st, errors.Wrapf(err, "unable to read stage %q", id)
}

// UpdateStage renames and recolours a stage. The patients of a renamed stage follow it.
func (s *Store) UpdateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	var updated model.Stage

	err := s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.stageByID(ctx, stage.ID)
		if err != nil {
			return err
		}

		if stage.Name != "" && stage.Name != current.Name {
			_, err = s.conn(ctx).Exec(ctx, `
				UPDATE patients SET status = $1, updated_at = NOW() WHERE status = $2 AND clinic_id = $3`,
				stage.Name, current.Name, current.ClinicID)
			if err != nil {
				return errors.Wrapf(err, "unable to move patients of stage %q", current.Name)
			}
			current.Name = stage.Name
		}
		if stage.Color != "" {
			current.Color = stage.Color
		}

		_, err = s.conn(ctx).Exec(ctx, `UPDATE kanban_stages SET name = $1, color = $2 WHERE id::text = $3`,
			current.Name, current.Color, current.ID)
		if isUniqueViolation(err) {
			return errors.Wrapf(store.ErrStageExists, "stage %q", current.Name)
		}
		if err != nil {
			return errors.Wrapf(err, "unable to update stage %q", current.ID)
		}
		updated = current

		return nil
	})
	if err != nil {
		return model.Stage{}, err
	}

	return updated, nil
}

// ReorderStages sets the order of every stage in ids to its index, all or nothing.
func (s *Store) ReorderStages(ctx context.Context, ids []string) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		for order, id := range ids {
			tag, err := s.conn(ctx).Exec(ctx, `
				UPDATE kanban_stages SET "order" = $1 WHERE id::text = $2 AND ($3 = '' OR clinic_id = $3)`,
				order, id, s.clinicID)
			if err != nil {
				return errors.Wrapf(err, "unable to reorder stage %q", id)
			}
			if tag.RowsAffected() == 0 {
				return errors.Wrapf(store.ErrNotFound, "stage %q", id)
			}
		}

		return nil
	})
}

// DeleteStage removes a stage without patients.
func (s *Store) DeleteStage(ctx context.Context, id string) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.stageByID(ctx, id)
		if err != nil {
			return err
		}

		var used bool
		err = s.conn(ctx).QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM patients WHERE status = $1 AND clinic_id = $2)`,
			current.Name, current.ClinicID).Scan(&used)
		if err != nil {
			return errors.Wrapf(err, "unable to check stage %q", current.Name)
		}
		if used {
			return errors.Wrapf(store.ErrStageInUse, "stage %q", current.Name)
		}

		_, err = s.conn(ctx).Exec(ctx, `DELETE FROM kanban_stages WHERE id::text = $1`, id)

		return errors.Wrapf(err, "unable to delete stage %q", current.Name)
	})
}

func (s *Store) Close() error {
	s.pool.Close()

	return nil
}

var _ store.Backend = (*Store)(nil)
