package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"mentalhealth-ai.bd/companion/internal/model"
)

const postColumns = "id, title, slug, category, status, read_time, excerpt, featured_image, content, author, created_at, updated_at"

func scanPost(row interface{ Scan(...any) error }) (*model.BlogPost, error) {
	var p model.BlogPost
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Category, &p.Status, &p.ReadTime, &p.Excerpt,
		&p.FeaturedImage, &p.Content, &p.Author, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PostQuery filters ListPosts.
type PostQuery struct {
	Status string
	Limit  int
}

// ListPosts returns posts newest first.
func (s *Store) ListPosts(q PostQuery) ([]model.BlogPost, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT " + postColumns + " FROM blog_posts")
	if q.Status != "" {
		sb.WriteString(" WHERE status = ?")
		args = append(args, q.Status)
	}
	sb.WriteString(" ORDER BY created_at DESC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.query(sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blog posts: %w", err)
	}
	defer rows.Close()

	posts := []model.BlogPost{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blog post: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// GetPost returns nil when no post has the id.
func (s *Store) GetPost(id string) (*model.BlogPost, error) {
	p, err := scanPost(s.queryRow("SELECT "+postColumns+" FROM blog_posts WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query blog post: %w", err)
	}
	return p, nil
}

func (s *Store) InsertPost(p *model.BlogPost) error {
	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.exec("INSERT INTO blog_posts ("+postColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.Title, p.Slug, p.Category, p.Status, p.ReadTime, p.Excerpt, p.FeaturedImage, p.Content, p.Author,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert blog post: %w", translate(err))
	}
	return nil
}

// UpdatePost overwrites every editable column. CreatedAt is left alone.
func (s *Store) UpdatePost(p *model.BlogPost) error {
	p.UpdatedAt = time.Now().UTC()
	err := s.updateOne(`UPDATE blog_posts SET title = ?, slug = ?, category = ?, status = ?, read_time = ?,
        excerpt = ?, featured_image = ?, content = ?, author = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Slug, p.Category, p.Status, p.ReadTime, p.Excerpt, p.FeaturedImage, p.Content, p.Author,
		p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	stored, err := s.GetPost(p.ID)
	if err != nil {
		return err
	}
	if stored != nil {
		*p = *stored
	}
	return nil
}

func (s *Store) DeletePost(id string) error {
	res, err := s.exec("DELETE FROM blog_posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete blog post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
