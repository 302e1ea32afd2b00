package port

import (
	"github.com/google/uuid"

	"docdash/internal/domain"
)

// SessionStore holds interactive sessions and hands each one to a single
// operation at a time.
type SessionStore interface {
	Create() (*domain.Session, error)
	Delete(id uuid.UUID) error
	// Acquire marks the session busy until release is called. It fails with
	// domain.ErrSessionBusy if another operation holds it.
	Acquire(id uuid.UUID) (sess *domain.Session, release func(), err error)
}
