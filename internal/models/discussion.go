package models

import "time"

// Discussion is a class-feed post. Content is sanitised before storage.
type Discussion struct {
	ID         uint                `gorm:"primaryKey" json:"id"`
	ClassID    uint                `gorm:"not null;index" json:"class_id"`
	AuthorID   uint                `gorm:"not null" json:"author_id"`
	AuthorName string              `gorm:"size:255" json:"author_name"`
	Content    string              `gorm:"type:text;not null" json:"content"`
	Comments   []DiscussionComment `gorm:"constraint:OnDelete:CASCADE" json:"comments"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// DiscussionComment is a reply attached to a discussion post.
type DiscussionComment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DiscussionID uint      `gorm:"not null;index" json:"discussion_id"`
	AuthorID     uint      `gorm:"not null" json:"author_id"`
	AuthorName   string    `gorm:"size:255" json:"author_name"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}
