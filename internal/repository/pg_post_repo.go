package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcast/social-publisher/internal/domain"
)

const postColumns = `id, product_id, user_id, platforms, message, image_ref, status,
		       created_at, scheduled_at, published_at, updated_at`

type pgPostRepository struct {
	pool *pgxpool.Pool
}

// NewPgPostRepository returns a PostRepository backed by PostgreSQL.
func NewPgPostRepository(pool *pgxpool.Pool) PostRepository {
	return &pgPostRepository{pool: pool}
}

func (r *pgPostRepository) Create(ctx context.Context, p *domain.Post) (string, error) {
	if err := prepareNew(p); err != nil {
		return "", err
	}
	platforms, err := encodePlatforms(p.Platforms)
	if err != nil {
		return "", err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO posts
			(id, product_id, user_id, platforms, message, image_ref, status,
			 created_at, scheduled_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.ProductID, p.UserID, platforms, p.Message, p.ImageRef, p.Status,
		p.CreatedAt, p.ScheduledAt, p.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert post: %w", err)
	}
	return p.ID, nil
}

func (r *pgPostRepository) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	// ids are UUIDs; anything else cannot exist and would only produce a cast error.
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *pgPostRepository) SetStatus(ctx context.Context, id string, status domain.Status, publishedAt *time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	pubAt, err := statusWrite(status, publishedAt)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE posts
		SET status = $1, published_at = $2, updated_at = $3
		WHERE id = $4 AND status <> $1`,
		status, pubAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update post status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Nothing changed: either the row is missing or it already has this status.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check post exists: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgPostRepository) List(ctx context.Context, f domain.PostFilter) ([]*domain.Post, int, error) {
	where, args := buildListWhere(f)
	limit, offset := pageBounds(f)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM posts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM posts%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, postColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []*domain.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, p)
	}
	return posts, total, rows.Err()
}

// ---- helpers ----

// scanPost reads a single post row from any pgx row type.
func scanPost(row pgx.Row) (*domain.Post, error) {
	var (
		p         domain.Post
		platforms []byte
	)
	err := row.Scan(
		&p.ID, &p.ProductID, &p.UserID, &platforms, &p.Message, &p.ImageRef, &p.Status,
		&p.CreatedAt, &p.ScheduledAt, &p.PublishedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Platforms, err = decodePlatforms(platforms); err != nil {
		return nil, err
	}
	return &p, nil
}

// buildListWhere builds a parameterised WHERE clause from a PostFilter.
func buildListWhere(f domain.PostFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.ProductID != nil {
		add("product_id = $%d", *f.ProductID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
