package store

import (
	"testing"
	"time"

	"elibrary/pkg/domain"
)

func TestMemoryStoreUserUniqueness(t *testing.T) {
	m := NewMemoryStore()
	u := domain.User{ID: "u1", Name: "Paul", Email: "paul@example.com", PasswordHash: "x", CreatedAt: time.Now()}
	if err := m.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	dup := domain.User{ID: "u2", Name: "Other", Email: "paul@example.com", PasswordHash: "y"}
	if err := m.SaveUser(dup); err != ErrDuplicateEmail {
		t.Fatalf("duplicate email error = %v, want ErrDuplicateEmail", err)
	}
	got, ok, err := m.GetUserByEmail("paul@example.com")
	if err != nil || !ok || got.ID != "u1" {
		t.Fatalf("get by email = (%v, %v, %v), want u1", got.ID, ok, err)
	}
	if _, ok, _ := m.GetUserByID("u2"); ok {
		t.Fatalf("rejected user must not be stored")
	}
}

func TestMemoryStoreBookUpdatePartialFields(t *testing.T) {
	m := NewMemoryStore()
	book := domain.Book{
		ID:         "b1",
		Title:      "Dune",
		Genre:      "scifi",
		AuthorID:   "u1",
		CoverImage: &domain.ObjectRef{ID: "book-covers/cover.png", URL: "http://media/book-covers/cover.png"},
		File:       &domain.ObjectRef{ID: "book-pdfs/dune.pdf", URL: "http://media/book-pdfs/dune.pdf"},
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := m.SaveBook(book); err != nil {
		t.Fatalf("save book: %v", err)
	}

	newCover := domain.ObjectRef{ID: "book-covers/cover-2.png", URL: "http://media/book-covers/cover-2.png"}
	updated, ok, err := m.UpdateBook("b1", BookUpdate{CoverImage: &newCover})
	if err != nil || !ok {
		t.Fatalf("update book: ok=%v err=%v", ok, err)
	}
	if updated.CoverImage == nil || updated.CoverImage.ID != newCover.ID {
		t.Fatalf("cover not replaced: %+v", updated.CoverImage)
	}
	if updated.File == nil || *updated.File != *book.File {
		t.Fatalf("file reference changed on cover-only update: %+v", updated.File)
	}
	if updated.Title != "Dune" || updated.Genre != "scifi" {
		t.Fatalf("unset fields changed: %+v", updated)
	}
}

func TestMemoryStoreUpdateMissingBook(t *testing.T) {
	m := NewMemoryStore()
	if _, ok, err := m.UpdateBook("missing", BookUpdate{}); ok || err != nil {
		t.Fatalf("update missing book = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMemoryStoreListOrderAndDelete(t *testing.T) {
	m := NewMemoryStore()
	for _, id := range []string{"b1", "b2", "b3"} {
		if err := m.SaveBook(domain.Book{ID: id, Title: id, Genre: "g", AuthorID: "u1"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := m.DeleteBook("b2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	books, err := m.ListBooks()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 2 || books[0].ID != "b1" || books[1].ID != "b3" {
		t.Fatalf("unexpected list after delete: %+v", books)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	book := domain.Book{
		ID:       "b1",
		Title:    "Dune",
		Genre:    "scifi",
		AuthorID: "u1",
		File:     &domain.ObjectRef{ID: "book-pdfs/dune.pdf", URL: "http://media/book-pdfs/dune.pdf"},
	}
	if err := m.SaveBook(book); err != nil {
		t.Fatalf("save book: %v", err)
	}
	got, _, _ := m.GetBook("b1")
	got.File.ID = "mutated"
	again, _, _ := m.GetBook("b1")
	if again.File.ID != "book-pdfs/dune.pdf" {
		t.Fatalf("stored state mutated through returned copy")
	}
}
