// Package sqlitestore is a local board store kept in a SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/askiada/clinic-pipeline/internal/store"
	"github.com/askiada/clinic-pipeline/pkg/pipeline/model"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout keeps timestamps sortable as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// schemaVersion is stored in PRAGMA user_version once the tables match schema.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS kanban_stages (
	id         TEXT PRIMARY KEY,
	clinic_id  TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	"order"    INTEGER NOT NULL DEFAULT 0,
	color      TEXT NOT NULL DEFAULT '',
	UNIQUE (clinic_id, name)
);

CREATE TABLE IF NOT EXISTS patients (
	id              TEXT PRIMARY KEY,
	clinic_id       TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL DEFAULT '',
	name            TEXT NOT NULL,
	cpf             TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	treatment_value TEXT NOT NULL DEFAULT '0',
	treatment       TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patients_created_at ON patients (created_at DESC);
`

// migrateUnversioned upgrades a database created before schema versions existed, when stage names
// were unique across clinics and patients had no owner.
const migrateUnversioned = `
ALTER TABLE patients ADD COLUMN clinic_id TEXT NOT NULL DEFAULT '';
ALTER TABLE patients ADD COLUMN user_id TEXT NOT NULL DEFAULT '';

CREATE TABLE kanban_stages_v1 (
	id         TEXT PRIMARY KEY,
	clinic_id  TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	"order"    INTEGER NOT NULL DEFAULT 0,
	color      TEXT NOT NULL DEFAULT '',
	UNIQUE (clinic_id, name)
);
INSERT INTO kanban_stages_v1 (id, clinic_id, name, "order", color)
	SELECT id, clinic_id, name, "order", color FROM kanban_stages;
DROP TABLE kanban_stages;
ALTER TABLE kanban_stages_v1 RENAME TO kanban_stages;

UPDATE patients SET clinic_id = COALESCE(
	(SELECT s.clinic_id FROM kanban_stages s WHERE s.name = patients.status LIMIT 1), '');
`

type Store struct {
	db       *sql.DB
	path     string
	clinicID string
}

// Open opens or creates the database at path and makes sure the tables exist. clinicID restricts
// the board to one clinic when set.
func Open(ctx context.Context, path, clinicID string) (*Store, error) {
	if path != MemoryPath {
		err := os.MkdirAll(filepath.Dir(path), 0o755)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open database")
	}
	// every connection to :memory: gets its own database
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, clinicID: clinicID}

	err = s.initialize(ctx)
	if err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`)
	if err != nil {
		return errors.Wrap(err, "unable to configure database")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var version int
	err = tx.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version)
	if err != nil {
		return errors.Wrap(err, "unable to read schema version")
	}
	if version >= schemaVersion {
		return nil
	}

	var legacy bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'patients')`).Scan(&legacy)
	if err != nil {
		return errors.Wrap(err, "unable to inspect schema")
	}
	if legacy {
		_, err = tx.ExecContext(ctx, migrateUnversioned)
		if err != nil {
			return errors.Wrap(err, "unable to migrate schema")
		}
	}

	_, err = tx.ExecContext(ctx, schema)
	if err != nil {
		return errors.Wrap(err, "unable to create schema")
	}
	// PRAGMA does not take parameters
	_, err = tx.ExecContext(ctx, `PRAGMA user_version = 1`)
	if err != nil {
		return errors.Wrap(err, "unable to set schema version")
	}

	return errors.Wrap(tx.Commit(), "unable to commit schema")
}

func (s *Store) FetchItems(ctx context.Context) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, cpf, phone, email, status, treatment_value, treatment, description, created_at
		FROM patients
		WHERE ?1 = '' OR clinic_id = ?1
		ORDER BY created_at DESC, rowid DESC`, s.clinicID)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list patients")
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var (
			it               model.Item
			value, createdAt string
		)

		err := rows.Scan(&it.ID, &it.UserID, &it.Name, &it.CPF, &it.Phone, &it.Email, &it.Stage, &value,
			&it.Treatment, &it.Description, &createdAt)
		if err != nil {
			return nil, errors.Wrap(err, "unable to scan patient")
		}

		it.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value of patient %q", it.ID)
		}
		it.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid creation time of patient %q", it.ID)
		}

		items = append(items, it)
	}

	return items, errors.Wrap(rows.Err(), "unable to list patients")
}

func (s *Store) FetchStages(ctx context.Context) ([]model.Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clinic_id, name, "order", color FROM kanban_stages
		WHERE ?1 = '' OR clinic_id = ?1
		ORDER BY "order" ASC, name ASC`, s.clinicID)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var known bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM kanban_stages WHERE name = ?1 AND (?2 = '' OR clinic_id = ?2))`,
		stage, s.clinicID).Scan(&known)
	if err != nil {
		return errors.Wrapf(err, "unable to check stage %q", stage)
	}
	if !known {
		return errors.Wrapf(store.ErrUnknownStage, "stage %q", stage)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE patients SET status = ?1 WHERE id = ?2 AND (?3 = '' OR clinic_id = ?3)`,
		stage, id, s.clinicID)
	if err != nil {
		return errors.Wrapf(err, "unable to update patient %q", id)
	}
	err = expectRows(res, store.ErrNotFound, "patient %q", id)
	if err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "unable to commit")
}

// CreateStage adds a stage to its clinic, or to the store clinic when it has none.
func (s *Store) CreateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}
	if stage.ClinicID == "" {
		stage.ClinicID = s.clinicID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Stage{}, errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	err = checkStageName(ctx, tx, stage.ClinicID, stage.Name)
	if err != nil {
		return model.Stage{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kanban_stages (id, clinic_id, name, "order", color) VALUES (?, ?, ?, ?, ?)`,
		stage.ID, stage.ClinicID, stage.Name, stage.Order, stage.Color)
	if err != nil {
		return model.Stage{}, errors.Wrapf(err, "unable to create stage %q", stage.Name)
	}

	return stage, errors.Wrap(tx.Commit(), "unable to commit")
}

// CreateItem adds a patient to the clinic of its stage.
func (s *Store) CreateItem(ctx context.Context, it model.Item) (model.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	it.CreatedAt = it.CreatedAt.UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (id, clinic_id, user_id, name, cpf, phone, email, status, treatment_value,
			treatment, description, created_at)
		SELECT ?1, clinic_id, ?2, ?3, ?4, ?5, ?6, name, ?7, ?8, ?9, ?10
		FROM kanban_stages WHERE name = ?11 AND (?12 = '' OR clinic_id = ?12)
		LIMIT 1`,
		it.ID, it.UserID, it.Name, it.CPF, it.Phone, it.Email, it.Value.String(), it.Treatment,
		it.Description, it.CreatedAt.Format(timeLayout), it.Stage, s.clinicID)
	if err != nil {
		return model.Item{}, errors.Wrapf(err, "unable to create patient %q", it.Name)
	}

	err = expectRows(res, store.ErrUnknownStage, "stage %q", it.Stage)
	if err != nil {
		return model.Item{}, err
	}

	return it, nil
}

// UpdateStage renames and recolours a stage. The patients of a renamed stage follow it.
func (s *Store) UpdateStage(ctx context.Context, stage model.Stage) (model.Stage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Stage{}, errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := s.stageByID(ctx, tx, stage.ID)
	if err != nil {
		return model.Stage{}, err
	}

	if stage.Name != "" && stage.Name != current.Name {
		err = checkStageName(ctx, tx, current.ClinicID, stage.Name)
		if err != nil {
			return model.Stage{}, err
		}

		_, err = tx.ExecContext(ctx, `UPDATE patients SET status = ?1 WHERE status = ?2 AND clinic_id = ?3`,
			stage.Name, current.Name, current.ClinicID)
		if err != nil {
			return model.Stage{}, errors.Wrapf(err, "unable to move patients of stage %q", current.Name)
		}
		current.Name = stage.Name
	}
	if stage.Color != "" {
		current.Color = stage.Color
	}

	_, err = tx.ExecContext(ctx, `UPDATE kanban_stages SET name = ?1, color = ?2 WHERE id = ?3`,
		current.Name, current.Color, current.ID)
	if err != nil {
		return model.Stage{}, errors.Wrapf(err, "unable to update stage %q", current.ID)
	}

	return current, errors.Wrap(tx.Commit(), "unable to commit")
}

// ReorderStages sets the order of every stage in ids to its index. Nothing changes when one of
// them is unknown.
func (s *Store) ReorderStages(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	for order, id := range ids {
		res, err := tx.ExecContext(ctx, `
			UPDATE kanban_stages SET "order" = ?1 WHERE id = ?2 AND (?3 = '' OR clinic_id = ?3)`,
			order, id, s.clinicID)
		if err != nil {
			return errors.Wrapf(err, "unable to reorder stage %q", id)
		}
		err = expectRows(res, store.ErrNotFound, "stage %q", id)
		if err != nil {
			return err
		}
	}

	return errors.Wrap(tx.Commit(), "unable to commit")
}

// DeleteStage removes a stage without patients.
func (s *Store) DeleteStage(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := s.stageByID(ctx, tx, id)
	if err != nil {
		return err
	}

	var used bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM patients WHERE status = ?1 AND clinic_id = ?2)`,
		current.Name, current.ClinicID).Scan(&used)
	if err != nil {
		return errors.Wrapf(err, "unable to check stage %q", current.Name)
	}
	if used {
		return errors.Wrapf(store.ErrStageInUse, "stage %q", current.Name)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM kanban_stages WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "unable to delete stage %q", current.Name)
	}

	return errors.Wrap(tx.Commit(), "unable to commit")
}

func (s *Store) Close() error {
	return errors.Wrapf(s.db.Close(), "unable to close %s", s.path)
}

func (s *Store) stageByID(ctx context.Context, tx *sql.Tx, id string) (model.Stage, error) {
	var st model.Stage
	err := tx.QueryRowContext(ctx, `
		SELECT id, clinic_id, name, "order", color FROM kanban_stages
		WHERE id = ?1 AND (?2 = '' OR clinic_id = ?2)`, id, s.clinicID).
		Scan(&st.ID, &st.ClinicID, &st.Name, &st.Order, &st.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Stage{}, errors.Wrapf(store.ErrNotFound, "stage %q", id)
	}

	return st, errors.Wrapf(err, "unable to read stage %q", id)
}

func checkStageName(ctx context.Context, tx *sql.Tx, clinicID, name string) error {
	var taken bool
	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM kanban_stages WHERE clinic_id = ? AND name = ?)`, clinicID, name).Scan(&taken)
	if err != nil {
		return errors.Wrapf(err, "unable to check stage %q", name)
	}
	if taken {
		return errors.Wrapf(store.ErrStageExists, "stage %q", name)
	}

	return nil
}

// expectRows returns target wrapped with the message when res changed no row.
func expectRows(res sql.Result, target error, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "unable to count updated rows")
	}
	if n == 0 {
		return errors.Wrapf(target, format, args...)
	}

	return nil
}

var _ store.Backend = (*Store)(nil)
