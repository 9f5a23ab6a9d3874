package domain

import "time"

// ObjectRef identifies a blob stored in the remote media store.
// A reference is either fully populated or absent (nil pointer on Book);
// a partially filled reference must never occur.
type ObjectRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Book struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Genre      string     `json:"genre"`
	AuthorID   string     `json:"authorId"`
	CoverImage *ObjectRef `json:"coverImage,omitempty"`
	File       *ObjectRef `json:"file,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
