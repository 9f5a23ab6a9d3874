package store

import (
	"errors"

	"elibrary/pkg/domain"
)

// ErrDuplicateEmail is returned by SaveUser when the email is already
// registered. The app layer checks first; this is the constraint safety net.
var ErrDuplicateEmail = errors.New("email already registered")

// Store defines persistence operations for users and books.
// Implementations perform no remote media calls; object references are only
// written here after the corresponding upload has succeeded.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// books
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	ListBooks() ([]domain.Book, error)
	UpdateBook(id string, fields BookUpdate) (domain.Book, bool, error)
	DeleteBook(id string) error
}

// BookUpdate carries partial book fields; nil means "leave unchanged".
type BookUpdate struct {
	Title      *string
	Genre      *string
	CoverImage *domain.ObjectRef
	File       *domain.ObjectRef
}

// SessionStore issues and validates bearer session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
}
