package models

import "time"

// Meeting records a live-class room created by a teacher. The room itself is
// hosted by an external conferencing provider; only the room ID is stored.
type Meeting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClassID   uint      `gorm:"not null;index" json:"class_id"`
	TeacherID uint      `gorm:"not null" json:"teacher_id"`
	RoomID    string    `gorm:"size:64;not null" json:"room_id"`
	StartTime time.Time `gorm:"not null" json:"start_time"`
	CreatedAt time.Time `json:"created_at"`
}
