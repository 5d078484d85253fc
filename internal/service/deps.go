package service

import (
	"context"
	"io"
)

// Actor identifies the authenticated caller. Handlers build it from verified
// JWT claims and pass it explicitly; services never read ambient request state.
type Actor struct {
	ID   uint
	Role string
}

// IsTeacher reports whether the actor holds the teacher role.
func (a Actor) IsTeacher() bool {
	return a.Role == "teacher"
}

// IsStudent reports whether the actor holds the student role.
func (a Actor) IsStudent() bool {
	return a.Role == "student"
}

// BlobStore is the object-storage capability consumed by services.
// Upload must be durable before it returns; records only ever reference
// keys whose objects already exist.
type BlobStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Presign(ctx context.Context, key, filename, contentType, action string) (string, error)
}

// EmailSender dispatches transactional mail without blocking the caller.
type EmailSender interface {
	Send(toName, toAddress, subject, body string)
}

// EventPublisher emits domain events. Implementations must tolerate being
// nil-configured and never fail the calling request.
type EventPublisher interface {
	Publish(subject string, payload interface{})
}
