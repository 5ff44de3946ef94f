package models

import "time"

// Post is a short message pinned to a coordinate. Posts are removed with their author.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Lat       float64   `gorm:"not null;index:idx_posts_lat_lng,priority:1" json:"lat"`
	Lng       float64   `gorm:"not null;index:idx_posts_lat_lng,priority:2" json:"lng"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &Post{}}
}
