package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/cppla/geopost/geo"
	"github.com/cppla/geopost/models"
)

// PostRepository persists posts and answers rectangular area queries.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	InBox(ctx context.Context, box geo.Box, limit int) ([]models.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(post).Error; err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// InBox returns up to limit posts inside box, newest first.
func (r *postRepository) InBox(ctx context.Context, box geo.Box, limit int) ([]models.Post, error) {
	q := r.db.WithContext(ctx).
		Where("lat BETWEEN ? AND ?", box.MinLat, box.MaxLat)

	if len(box.Lng) > 0 {
		lng := r.db.Where("lng BETWEEN ? AND ?", box.Lng[0].Min, box.Lng[0].Max)
		for _, rg := range box.Lng[1:] {
			lng = lng.Or("lng BETWEEN ? AND ?", rg.Min, rg.Max)
		}
		q = q.Where(lng)
	}

	posts := []models.Post{}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("query posts in box: %w", err)
	}
	return posts, nil
}
