package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const table = "records"

// SQLStore persists records in a single wide table through sqlx. It works
// against SQLite (modernc) and PostgreSQL (lib/pq).
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an open connection. Call Migrate before first use on a
// fresh database.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQLite opens (creating if needed) an embedded SQLite database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps pragmas and writes on the same handle
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL using a lib/pq connection URL.
func OpenPostgres(ctx context.Context, url string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the records table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL()); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func schemaSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	for i, f := range fields {
		if i > 0 {
			b.WriteString(",\n")
		}
		switch {
		case f.Group == GroupKey:
			fmt.Fprintf(&b, "\t%s TEXT PRIMARY KEY", columnOf(f))
		case f.Numeric():
			fmt.Fprintf(&b, "\t%s DOUBLE PRECISION NOT NULL DEFAULT 0", columnOf(f))
		default:
			fmt.Fprintf(&b, "\t%s TEXT NOT NULL DEFAULT ''", columnOf(f))
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// columnOf maps the key field onto "id"; everything else uses its lowercase header.
func columnOf(f Field) string {
	if f.Group == GroupKey {
		return "id"
	}
	return f.DBColumn()
}

func columnList() string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = columnOf(f)
	}
	return strings.Join(cols, ", ")
}

func (s *SQLStore) insertSQL(onConflict string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) %s", table, columnList(), marks, onConflict)
	return s.db.Rebind(q)
}

func upsertClause() string {
	sets := make([]string, 0, len(fields)-1)
	for _, f := range fields {
		if f.Group == GroupKey {
			continue
		}
		c := columnOf(f)
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return "DO UPDATE SET " + strings.Join(sets, ", ")
}

func values(r Record) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = f.Value(r)
	}
	return out
}

func (s *SQLStore) Upsert(ctx context.Context, r Record) error {
	if r.ID == "" {
		return ErrMissingID
	}
	if _, err := s.db.ExecContext(ctx, s.insertSQL(upsertClause()), values(r)...); err != nil {
		return fmt.Errorf("upsert record %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLStore) Insert(ctx context.Context, r Record) (bool, error) {
	if r.ID == "" {
		return false, ErrMissingID
	}
	res, err := s.db.ExecContext(ctx, s.insertSQL("DO NOTHING"), values(r)...)
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", r.ID, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	q := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columnList(), table))
	row := s.db.QueryRowxContext(ctx, q, id)
	m := map[string]any{}
	if err := row.MapScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	r, _ := fromRow(m)
	return r, nil
}

func (s *SQLStore) All(ctx context.Context) ([]Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", columnList(), table)
	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, _ := fromRow(m)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func (s *SQLStore) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, fmt.Sprintf("SELECT id FROM %s ORDER BY id", table)); err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return ids, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *SQLStore) AverageScore(ctx context.Context, pred Predicate) (float64, error) {
	all, err := s.All(ctx)
	if err != nil {
		return 0, err
	}
	return averageOf(all, pred), nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// fromRow projects a scanned column map through the same defaulting rule as
// dataset import.
func fromRow(m map[string]any) (Record, []string) {
	attrs := make(map[string]string, len(m))
	for k, v := range m {
		attrs[k] = cellString(v)
	}
	return FromAttributes(attrs, '.')
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
