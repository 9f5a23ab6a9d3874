package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"elibrary/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey"`
	Name         string    `gorm:"not null"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

type BookModel struct {
	ID         string `gorm:"primaryKey"`
	Title      string `gorm:"not null"`
	Genre      string `gorm:"not null"`
	AuthorID   string `gorm:"not null;index"`
	CoverImage datatypes.JSON `gorm:"type:jsonb"`
	File       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:         b.ID,
		Title:      b.Title,
		Genre:      b.Genre,
		AuthorID:   b.AuthorID,
		CoverImage: refToJSON(b.CoverImage),
		File:       refToJSON(b.File),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func bookFromModel(m BookModel) (domain.Book, error) {
	cover, err := refFromJSON(m.CoverImage)
	if err != nil {
		return domain.Book{}, err
	}
	file, err := refFromJSON(m.File)
	if err != nil {
		return domain.Book{}, err
	}
	return domain.Book{
		ID:         m.ID,
		Title:      m.Title,
		Genre:      m.Genre,
		AuthorID:   m.AuthorID,
		CoverImage: cover,
		File:       file,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

// refToJSON renders an absent reference as SQL NULL, never as an empty
// placeholder.
func refToJSON(ref *domain.ObjectRef) datatypes.JSON {
	if ref == nil {
		return nil
	}
	raw, err := json.Marshal(ref)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func refFromJSON(raw datatypes.JSON) (*domain.ObjectRef, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ref domain.ObjectRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}
