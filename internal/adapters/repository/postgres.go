package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/okian/surgilog/internal/domain/model"
	"github.com/okian/surgilog/pkg/metrics"
)

const driverPostgres = "postgres"

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore persists records in a single PostgreSQL table. Steps and OSAT
// evaluations are stored as JSONB and the revision column guards every update.
type PostgresStore struct {
	db           *sqlx.DB
	maxOpenConns int
	migrate      bool
}

// OpenPostgres connects to dsn and optionally applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{maxOpenConns: 10}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sqlx.ConnectContext(ctx, driverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(s.maxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	s.db = db

	if s.migrate {
		if err := ApplyMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ApplyMigrations runs every embedded migration not yet recorded in
// schema_migrations, in file name order, each in its own transaction.
func ApplyMigrations(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("%w: create schema_migrations: %w", ErrMigration, err)
	}

	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}
	slices.Sort(names)

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT name FROM schema_migrations`); err != nil {
		return fmt.Errorf("%w: list applied: %w", ErrMigration, err)
	}

	for _, name := range names {
		base := strings.TrimPrefix(name, "migrations/")
		if slices.Contains(applied, base) {
			continue
		}
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("%w: read %s: %w", ErrMigration, base, err)
		}
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMigration, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: apply %s: %w", ErrMigration, base, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, base); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: record %s: %w", ErrMigration, base, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit %s: %w", ErrMigration, base, err)
		}
	}
	return nil
}

// jsonColumn stores any JSON-serialisable value in a JSONB column.
type jsonColumn[T any] struct {
	V T
}

func (c jsonColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(c.V)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (c *jsonColumn[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		var zero T
		c.V = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &c.V)
	case string:
		return json.Unmarshal([]byte(v), &c.V)
	}
	return fmt.Errorf("unsupported jsonb source %T", src)
}

type recordRow struct {
	ID               string                             `db:"id"`
	ResidentID       string                             `db:"resident_id"`
	TeacherID        string                             `db:"teacher_id"`
	SurgeryID        string                             `db:"surgery_id"`
	SurgeryName      string                             `db:"surgery_name"`
	AreaID           string                             `db:"area_id"`
	PatientID        string                             `db:"patient_id"`
	Date             time.Time                          `db:"date"`
	Status           string                             `db:"status"`
	ResidentsYear    int                                `db:"residents_year"`
	Steps            jsonColumn[[]model.Step]           `db:"steps"`
	Osats            jsonColumn[[]model.OsatEvaluation] `db:"osats"`
	ResidentJudgment int                                `db:"resident_judgment"`
	TeacherJudgment  int                                `db:"teacher_judgment"`
	SummaryScale     string                             `db:"summary_scale"`
	ResidentComment  string                             `db:"resident_comment"`
	Feedback         string                             `db:"feedback"`
	Completion       int                                `db:"completion"`
	Deleted          bool                               `db:"deleted"`
	Revision         int64                              `db:"revision"`
	ReviewedAt       sql.NullTime                       `db:"reviewed_at"`
	CanceledAt       sql.NullTime                       `db:"canceled_at"`
	CreatedAt        time.Time                          `db:"created_at"`
	UpdatedAt        time.Time                          `db:"updated_at"`
}

const recordColumns = `id, resident_id, teacher_id, surgery_id, surgery_name, area_id, patient_id,
	date, status, residents_year, steps, osats, resident_judgment, teacher_judgment,
	summary_scale, resident_comment, feedback, completion, deleted, revision,
	reviewed_at, canceled_at, created_at, updated_at`

func toRow(rec model.Record) recordRow {
	return recordRow{
		ID:               rec.ID,
		ResidentID:       rec.ResidentID,
		TeacherID:        rec.TeacherID,
		SurgeryID:        rec.SurgeryID,
		SurgeryName:      rec.SurgeryName,
		AreaID:           rec.AreaID,
		PatientID:        rec.PatientID,
		Date:             rec.Date.UTC(),
		Status:           string(rec.Status),
		ResidentsYear:    rec.ResidentsYear,
		Steps:            jsonColumn[[]model.Step]{V: rec.Steps},
		Osats:            jsonColumn[[]model.OsatEvaluation]{V: rec.Osats},
		ResidentJudgment: rec.ResidentJudgment,
		TeacherJudgment:  rec.TeacherJudgment,
		SummaryScale:     string(rec.SummaryScale),
		ResidentComment:  rec.ResidentComment,
		Feedback:         rec.Feedback,
		Completion:       rec.Completion,
		Deleted:          rec.Deleted,
		Revision:         rec.Revision,
		ReviewedAt:       nullTime(rec.ReviewedAt),
		CanceledAt:       nullTime(rec.CanceledAt),
		CreatedAt:        rec.CreatedAt.UTC(),
		UpdatedAt:        rec.UpdatedAt.UTC(),
	}
}

func (r recordRow) record() model.Record {
	return model.Record{
		ID:               r.ID,
		ResidentID:       r.ResidentID,
		TeacherID:        r.TeacherID,
		SurgeryID:        r.SurgeryID,
		SurgeryName:      r.SurgeryName,
		AreaID:           r.AreaID,
		PatientID:        r.PatientID,
		Date:             r.Date,
		Status:           model.Status(r.Status),
		ResidentsYear:    r.ResidentsYear,
		Steps:            r.Steps.V,
		Osats:            r.Osats.V,
		ResidentJudgment: r.ResidentJudgment,
		TeacherJudgment:  r.TeacherJudgment,
		SummaryScale:     model.SummaryScale(r.SummaryScale),
		ResidentComment:  r.ResidentComment,
		Feedback:         r.Feedback,
		Completion:       r.Completion,
		Deleted:          r.Deleted,
		Revision:         r.Revision,
		ReviewedAt:       timePtr(r.ReviewedAt),
		CanceledAt:       timePtr(r.CanceledAt),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, rec model.Record) (model.Record, error) {
	const op = "repository.postgres.insert"
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(driverPostgres, "insert", sinceMs(start)) }()

	row := toRow(rec)
	row.Revision = 1

	var out recordRow
	err := s.db.QueryRowxContext(ctx, `INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, now(), now())
		ON CONFLICT (id) DO NOTHING
		RETURNING `+recordColumns,
		row.ID, row.ResidentID, row.TeacherID, row.SurgeryID, row.SurgeryName, row.AreaID,
		row.PatientID, row.Date, row.Status, row.ResidentsYear, row.Steps, row.Osats,
		row.ResidentJudgment, row.TeacherJudgment, row.SummaryScale, row.ResidentComment,
		row.Feedback, row.Completion, row.Deleted, row.Revision, row.ReviewedAt, row.CanceledAt,
	).StructScan(&out)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, model.WrapKind(op, model.ErrConflict, fmt.Errorf("record %s already exists", rec.ID))
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return out.record(), nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, id string) (model.Record, error) {
	const op = "repository.postgres.load"
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(driverPostgres, "load", sinceMs(start)) }()

	var row recordRow
	err := s.db.GetContext(ctx, &row, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, model.WrapKind(op, model.ErrNotFound, fmt.Errorf("record %s", id))
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return row.record(), nil
}

// Save implements Store. The update only matches the row at rec.Revision; a
// miss is resolved into ErrNotFound or ErrConflict with a follow-up read.
func (s *PostgresStore) Save(ctx context.Context, rec model.Record) (model.Record, error) {
	const op = "repository.postgres.save"
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(driverPostgres, "save", sinceMs(start)) }()

	row := toRow(rec)
	var out recordRow
	err := s.db.QueryRowxContext(ctx, `UPDATE records SET
			status = $3, steps = $4, osats = $5, resident_judgment = $6, teacher_judgment = $7,
			summary_scale = $8, resident_comment = $9, feedback = $10, completion = $11,
			deleted = $12, reviewed_at = $13, canceled_at = $14,
			revision = revision + 1, updated_at = now()
		WHERE id = $1 AND revision = $2
		RETURNING `+recordColumns,
		row.ID, row.Revision, row.Status, row.Steps, row.Osats, row.ResidentJudgment,
		row.TeacherJudgment, row.SummaryScale, row.ResidentComment, row.Feedback,
		row.Completion, row.Deleted, row.ReviewedAt, row.CanceledAt,
	).StructScan(&out)
	if err == nil {
		return out.record(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%s: %w", op, err)
	}

	var current int64
	err = s.db.GetContext(ctx, &current, `SELECT revision FROM records WHERE id = $1`, rec.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, model.WrapKind(op, model.ErrNotFound, fmt.Errorf("record %s", rec.ID))
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("%s: %w", op, err)
	}
	return model.Record{}, model.WrapKind(op, model.ErrConflict,
		fmt.Errorf("record %s is at revision %d, write based on %d", rec.ID, current, rec.Revision))
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]model.Record, error) {
	const op = "repository.postgres.query"
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(driverPostgres, "query", sinceMs(start)) }()

	query, args, err := buildQuery(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := make([]model.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

// buildQuery renders f with '?' bindvars; callers Rebind for the driver.
func buildQuery(f Filter) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	if !f.IncludeDeleted {
		where = append(where, "NOT deleted")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		clause, inArgs, err := sqlx.In("status IN (?)", statuses)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
		args = append(args, inArgs...)
	}
	for _, eq := range []struct {
		column string
		value  string
	}{
		{"surgery_id", f.SurgeryID},
		{"surgery_name", f.SurgeryName},
		{"resident_id", f.ResidentID},
		{"teacher_id", f.TeacherID},
	} {
		if eq.value != "" {
			where = append(where, eq.column+" = ?")
			args = append(args, eq.value)
		}
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"
	return query, args, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM records WHERE NOT deleted`); err != nil {
		return 0, fmt.Errorf("repository.postgres.count: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
