package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shopcast/social-publisher/internal/domain"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLitePostRepository is a PostRepository for single-node deployments.
// Timestamps are stored as fixed-width RFC 3339 text in UTC so they sort
// lexically.
type SQLitePostRepository struct {
	db *sql.DB
}

// OpenSQLitePostRepository opens (creating if needed) the database at path
// and applies the schema. Use ":memory:" for a throwaway store.
func OpenSQLitePostRepository(ctx context.Context, path string) (*SQLitePostRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer; this also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLitePostRepository{db: db}, nil
}

func (r *SQLitePostRepository) Close() error {
	return r.db.Close()
}

// DB exposes the handle so the product catalogue can share the file.
func (r *SQLitePostRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLitePostRepository) Create(ctx context.Context, p *domain.Post) (string, error) {
	if err := prepareNew(p); err != nil {
		return "", err
	}
	platforms, err := encodePlatforms(p.Platforms)
	if err != nil {
		return "", err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO posts
			(id, product_id, user_id, platforms, message, image_ref, status,
			 created_at, scheduled_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProductID, p.UserID, string(platforms), p.Message, p.ImageRef, string(p.Status),
		formatTime(p.CreatedAt), formatTimePtr(p.ScheduledAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}
	return p.ID, nil
}

func (r *SQLitePostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, user_id, platforms, message, image_ref, status,
		       created_at, scheduled_at, published_at, updated_at
		FROM posts WHERE id = ?`, id)
	p, err := scanSQLitePost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *SQLitePostRepository) SetStatus(ctx context.Context, id string, status domain.Status, publishedAt *time.Time) error {
	pubAt, err := statusWrite(status, publishedAt)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE posts
		SET status = ?, published_at = ?, updated_at = ?
		WHERE id = ? AND status <> ?`,
		string(status), formatTimePtr(pubAt), formatTime(time.Now()), id, string(status))
	if err != nil {
		return fmt.Errorf("update post status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check post exists: %w", err)
	}
	if exists == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SQLitePostRepository) List(ctx context.Context, f domain.PostFilter) ([]*domain.Post, int, error) {
	var (
		conditions []string
		args       []any
	)
	if f.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.ProductID != nil {
		conditions = append(conditions, "product_id = ?")
		args = append(args, *f.ProductID)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	limit, offset := pageBounds(f)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, user_id, platforms, message, image_ref, status,
		       created_at, scheduled_at, published_at, updated_at
		FROM posts`+where+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []*domain.Post{}
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, p)
	}
	return posts, total, rows.Err()
}

var _ PostRepository = (*SQLitePostRepository)(nil)

// ---- helpers ----

type sqlRow interface {
	Scan(dest ...any) error
}

func scanSQLitePost(row sqlRow) (*domain.Post, error) {
	var (
		p                        domain.Post
		platforms, status        string
		imageRef                 sql.NullString
		createdAt, updatedAt     string
		scheduledAt, publishedAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.ProductID, &p.UserID, &platforms, &p.Message, &imageRef, &status,
		&createdAt, &scheduledAt, &publishedAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.Status = domain.Status(status)
	if imageRef.Valid {
		p.ImageRef = &imageRef.String
	}
	if p.Platforms, err = decodePlatforms([]byte(platforms)); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if p.ScheduledAt, err = parseTimePtr(scheduledAt); err != nil {
		return nil, err
	}
	if p.PublishedAt, err = parseTimePtr(publishedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// sqliteTimeLayout has a fixed-width fraction so stored values sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
