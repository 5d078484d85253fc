package models

import "time"

// Material is a teacher-uploaded class resource: either a stored file or an external link.
type Material struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClassID    uint      `gorm:"not null;index" json:"class_id"`
	UploaderID uint      `gorm:"not null" json:"uploader_id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	IsLink     bool      `gorm:"not null;default:false" json:"is_link"`
	LinkURL    string    `gorm:"size:1024" json:"link_url,omitempty"`
	FileKey    string    `gorm:"size:512" json:"file_key,omitempty"`
	FileType   string    `gorm:"size:128" json:"file_type,omitempty"`
	FileName   string    `gorm:"size:255" json:"file_name,omitempty"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
