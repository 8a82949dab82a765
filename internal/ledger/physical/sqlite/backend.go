// Package sqlite provides a SQLite-backed ledger backend.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	"github.com/MasterChonk/SkillToken-V2/internal/storage"
	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

const (
	KeyPath        = "path"
	KeyJournalMode = "journal_mode"
	KeyBusyTimeout = "busy_timeout"
	KeyCacheSize   = "cache_size"
)

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	physical.Register("sqlite", NewFactory, Defaults)
}

// Defaults returns the default configuration for the SQLite backend.
// A relative path resolves under the server data directory.
func Defaults() map[string]string {
	return map[string]string{
		KeyPath:        "ledger.db",
		KeyJournalMode: "wal",
		KeyBusyTimeout: "5000",
		KeyCacheSize:   "-64000",
	}
}

// NewFactory creates a new SQLite backend from a configuration map.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	path := storage.GetString(config, KeyPath, "")
	if path == "" {
		return nil, storage.NewConfigError("sqlite", KeyPath, "cannot be empty")
	}
	path = storage.ResolvePath(path, storage.GetString(config, storage.KeyDataDir, ""))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to create directory", err)
	}

	journalMode := storage.GetString(config, KeyJournalMode, "wal")
	busyTimeout := storage.GetString(config, KeyBusyTimeout, "5000")
	cacheSize := storage.GetString(config, KeyCacheSize, "-64000")

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(%s)&_pragma=cache_size(%s)&_pragma=foreign_keys(1)",
		path, journalMode, busyTimeout, cacheSize)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to open database", err)
	}

	db.SetMaxOpenConns(1)

	if err := storage.ApplyMigrations(ctx, db, migrations, "migrations"); err != nil {
		db.Close()
		return nil, storage.NewConfigErrorWithCause("sqlite", KeyPath, "failed to initialize schema", err)
	}

	slog.InfoContext(ctx, "sqlite ledger initialized", "path", path, "journal_mode", journalMode)
	return &Backend{db: db}, nil
}

// Backend is a SQLite implementation of physical.Backend.
type Backend struct {
	db     *sql.DB
	closed atomic.Bool
}

// Load reads every table into a snapshot.
func (b *Backend) Load(ctx context.Context) (*physical.Snapshot, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	snap := &physical.Snapshot{}
	if err := b.loadRoles(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.loadCourses(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.loadCertificates(ctx, snap); err != nil {
		return nil, err
	}
	if err := b.loadGrants(ctx, snap); err != nil {
		return nil, err
	}
	last, err := maxSeq(ctx, b.db)
	if err != nil {
		return nil, fmt.Errorf("sqlite load: %w", err)
	}
	snap.LastSeq = last
	snap.Sort()
	return snap, nil
}

func (b *Backend) loadRoles(ctx context.Context, snap *physical.Snapshot) error {
	rows, err := b.db.QueryContext(ctx, `SELECT account, role, granted_by, granted_at FROM roles`)
	if err != nil {
		return fmt.Errorf("sqlite load roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r credential.RoleAssignment
		var grantedAt int64
		if err := rows.Scan(&r.Account, &r.Role, &r.GrantedBy, &grantedAt); err != nil {
			return fmt.Errorf("sqlite load roles: scan: %w", err)
		}
		r.GrantedAt = fromMillis(grantedAt)
		snap.Roles = append(snap.Roles, r)
	}
	return rows.Err()
}

func (b *Backend) loadCourses(ctx context.Context, snap *physical.Snapshot) error {
	rows, err := b.db.QueryContext(ctx, `SELECT id, name, owner, active, created_at FROM courses ORDER BY id`)
	if err != nil {
		return fmt.Errorf("sqlite load courses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c credential.Course
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Owner, &c.Active, &createdAt); err != nil {
			return fmt.Errorf("sqlite load courses: scan: %w", err)
		}
		c.CreatedAt = fromMillis(createdAt)
		snap.Courses = append(snap.Courses, c)
	}
	return rows.Err()
}

func (b *Backend) loadCertificates(ctx context.Context, snap *physical.Snapshot) error {
	rows, err := b.db.QueryContext(ctx, `
SELECT token_id, student, course_id, content_hash, token_uri, issuer, issued_at,
       validated, validated_by, validated_at
FROM certificates ORDER BY token_id`)
	if err != nil {
		return fmt.Errorf("sqlite load certificates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c credential.Certificate
		var issuedAt int64
		var validatedAt sql.NullInt64
		if err := rows.Scan(&c.TokenID, &c.Student, &c.CourseID, &c.ContentHash, &c.TokenURI,
			&c.Issuer, &issuedAt, &c.Validated, &c.ValidatedBy, &validatedAt); err != nil {
			return fmt.Errorf("sqlite load certificates: scan: %w", err)
		}
		c.IssuedAt = fromMillis(issuedAt)
		c.ValidatedAt = fromNullMillis(validatedAt)
		snap.Certificates = append(snap.Certificates, c)
	}
	return rows.Err()
}

func (b *Backend) loadGrants(ctx context.Context, snap *physical.Snapshot) error {
	rows, err := b.db.QueryContext(ctx, `
SELECT id, grantor, grantee, scope_all, course_id, active, created_at, revoked_at
FROM grants ORDER BY id`)
	if err != nil {
		return fmt.Errorf("sqlite load grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g credential.Grant
		var createdAt int64
		var revokedAt sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Grantor, &g.Grantee, &g.Scope.All, &g.Scope.CourseID,
			&g.Active, &createdAt, &revokedAt); err != nil {
			return fmt.Errorf("sqlite load grants: scan: %w", err)
		}
		g.CreatedAt = fromMillis(createdAt)
		g.RevokedAt = fromNullMillis(revokedAt)
		snap.Grants = append(snap.Grants, g)
	}
	return rows.Err()
}

// Apply writes the commit in a single transaction.
func (b *Backend) Apply(ctx context.Context, c *physical.Commit) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite apply: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if len(c.Events) > 0 {
		last, err := maxSeq(ctx, tx)
		if err != nil {
			return fmt.Errorf("sqlite apply: %w", err)
		}
		if err := physical.CheckSequence(last, c.Events); err != nil {
			return err
		}
	}

	for _, r := range c.Roles {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO roles (account, role, granted_by, granted_at) VALUES (?, ?, ?, ?)
ON CONFLICT(account, role) DO UPDATE SET granted_by = excluded.granted_by, granted_at = excluded.granted_at`,
			string(r.Account), string(r.Role), string(r.GrantedBy), r.GrantedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("sqlite apply: upsert role: %w", err)
		}
	}
	for _, course := range c.Courses {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO courses (id, name, owner, active, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, owner = excluded.owner, active = excluded.active`,
			course.ID, course.Name, string(course.Owner), course.Active, course.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("sqlite apply: upsert course: %w", err)
		}
	}
	for _, cert := range c.Certificates {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO certificates (token_id, student, course_id, content_hash, token_uri, issuer, issued_at,
                          validated, validated_by, validated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(token_id) DO UPDATE SET validated = excluded.validated,
    validated_by = excluded.validated_by, validated_at = excluded.validated_at`,
			cert.TokenID, string(cert.Student), cert.CourseID, cert.ContentHash, cert.TokenURI,
			string(cert.Issuer), cert.IssuedAt.UnixMilli(),
			cert.Validated, string(cert.ValidatedBy), nullMillis(cert.ValidatedAt),
		); err != nil {
			return fmt.Errorf("sqlite apply: upsert certificate: %w", err)
		}
	}
	for _, g := range c.Grants {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO grants (id, grantor, grantee, scope_all, course_id, active, created_at, revoked_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET active = excluded.active, revoked_at = excluded.revoked_at`,
			g.ID, string(g.Grantor), string(g.Grantee), g.Scope.All, g.Scope.CourseID,
			g.Active, g.CreatedAt.UnixMilli(), nullMillis(g.RevokedAt),
		); err != nil {
			return fmt.Errorf("sqlite apply: upsert grant: %w", err)
		}
	}

	if len(c.Events) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (seq, type, at, payload) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("sqlite apply: prepare event insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range c.Events {
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("sqlite apply: encode event %d: %w", e.Seq, err)
			}
			if _, err := stmt.ExecContext(ctx, e.Seq, string(e.Type), e.At.UnixMilli(), string(payload)); err != nil {
				return fmt.Errorf("sqlite apply: insert event: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Events returns up to limit events after the given sequence.
func (b *Backend) Events(ctx context.Context, after uint64, limit int) ([]credential.Event, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	q := `SELECT payload FROM events WHERE seq > ? ORDER BY seq`
	args := []any{after}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite events: %w", err)
	}
	defer rows.Close()

	var events []credential.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("sqlite events: scan: %w", err)
		}
		var e credential.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("sqlite events: decode: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (b *Backend) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	return b.db.PingContext(ctx)
}

// Stats returns storage statistics.
func (b *Backend) Stats(ctx context.Context) (*physical.Stats, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}

	var sizeBytes, events int64
	err := b.db.QueryRowContext(ctx,
		`SELECT page_count * page_size FROM pragma_page_count, pragma_page_size`).Scan(&sizeBytes)
	if err != nil {
		return nil, fmt.Errorf("sqlite stats: %w", err)
	}
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&events); err != nil {
		return nil, fmt.Errorf("sqlite stats: %w", err)
	}

	return &physical.Stats{
		SizeBytes:   sizeBytes,
		Events:      events,
		BackendType: "sqlite",
	}, nil
}

// Close closes the SQLite database.
func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func maxSeq(ctx context.Context, q queryer) (uint64, error) {
	var last uint64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&last); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return last, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
