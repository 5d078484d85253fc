package models

import (
	"time"

	"gorm.io/datatypes"
)

// ClassroomFolder describes a named content folder shown in the class UI.
type ClassroomFolder struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
}

// Classroom represents a class owned by a teacher and joined by students.
type Classroom struct {
	ID        uint                                   `gorm:"primaryKey" json:"id"`
	Name      string                                 `gorm:"size:255;not null" json:"name"`
	Subject   string                                 `gorm:"size:255" json:"subject"`
	Section   string                                 `gorm:"size:64" json:"section"`
	Code      string                                 `gorm:"size:16;uniqueIndex;not null" json:"code"`
	CreatedBy uint                                   `gorm:"not null;index" json:"created_by"`
	Students  datatypes.JSONSlice[uint]              `json:"students"`
	Folders   datatypes.JSONSlice[ClassroomFolder]   `json:"folders"`
	CreatedAt time.Time                              `json:"created_at"`
	UpdatedAt time.Time                              `json:"updated_at"`
}

// HasStudent reports whether the given student has joined the class.
func (c Classroom) HasStudent(studentID uint) bool {
	for _, id := range c.Students {
		if id == studentID {
			return true
		}
	}
	return false
}

// DefaultFolders returns the folder layout created with every new classroom.
func DefaultFolders() []ClassroomFolder {
	return []ClassroomFolder{
		{Name: "Materials", Visibility: "public"},
		{Name: "Test Submissions", Visibility: "private"},
		{Name: "Assignment Materials", Visibility: "private"},
		{Name: "Presentation Materials", Visibility: "private"},
		{Name: "Discussion Forum", Visibility: "public"},
		{Name: "Groups", Visibility: "private"},
	}
}
