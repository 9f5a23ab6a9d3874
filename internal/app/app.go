package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"elibrary/internal/util"
	"elibrary/pkg/auth"
	"elibrary/pkg/domain"
	"elibrary/pkg/storage"
	"elibrary/pkg/store"
)

const (
	coverFolder = "book-covers"
	fileFolder  = "book-pdfs"

	defaultRemoteTimeout = 30 * time.Second
)

// dummyHash is compared against when login hits an unknown email, so both
// failure paths cost one bcrypt comparison.
var dummyHash, _ = auth.HashPassword("timing-equalizer")

// Config holds runtime configuration for the core application.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	Media    storage.MediaStore

	DatabaseURL string
	JWTSecret   string
	SessionTTL  time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// RemoteTimeout bounds every media-store call.
	RemoteTimeout time.Duration
}

// App wires persistence, sessions and the remote media store together and
// owns the upload orchestration sequence.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	media         storage.MediaStore
	remoteTimeout time.Duration
}

// New constructs the application with database-backed metadata storage and
// MinIO-backed media storage unless test doubles are injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	media := cfg.Media
	if media == nil {
		var err error
		media, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init media store: %w", err)
		}
	}
	sessions := cfg.Sessions
	if sessions == nil {
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, fmt.Errorf("jwt secret required")
		}
		sessions = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL)
	}
	timeout := cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &App{
		store:         dataStore,
		sessions:      sessions,
		media:         media,
		remoteTimeout: timeout,
	}, nil
}

// Register creates a user and issues an access token. The email must not be
// in use; the store enforces uniqueness even if the pre-check races.
func (a *App) Register(name, email, password string) (domain.User, string, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return domain.User{}, "", ErrAllFieldsRequired
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user := domain.User{
		ID:           util.NewID(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.SaveUser(user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return domain.User{}, "", ErrEmailAlreadyExists
		}
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and issues an access token. Unknown email and
// wrong password are indistinguishable to the caller.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrAllFieldsRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("find user: %w", err)
	}
	if !ok {
		auth.CheckPassword(password, dummyHash)
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// UserByID resolves the authenticated user behind a verified token subject.
func (a *App) UserByID(id string) (domain.User, bool, error) {
	return a.store.GetUserByID(id)
}

// UserFromToken verifies an access token and resolves its user.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil || !ok {
		return domain.User{}, false
	}
	return user, true
}

// UploadedFile describes one multipart file already staged on local disk by
// the transport layer.
type UploadedFile struct {
	Path        string
	Filename    string
	ContentType string
}

// CreateBookInput carries the fields of a book-create request.
type CreateBookInput struct {
	Title      string
	Genre      string
	CoverImage *UploadedFile
	File       *UploadedFile
}

// UpdateBookInput carries the optional fields of a book-update request; nil
// means "not supplied".
type UpdateBookInput struct {
	Title      *string
	Genre      *string
	CoverImage *UploadedFile
	File       *UploadedFile
}

// CreateBook runs the create orchestration: validate, upload cover, upload
// book file, persist the record, then clean up the staged temp files.
//
// If the file upload fails after the cover upload succeeded, the cover is
// destroyed best-effort so no remote object is orphaned. If persistence
// fails, both uploads are destroyed best-effort. No partial record is ever
// created.
func (a *App) CreateBook(ctx context.Context, user domain.User, in CreateBookInput) (domain.Book, error) {
	logger := util.LoggerFromContext(ctx)
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Genre) == "" {
		return domain.Book{}, ErrTitleAndGenreRequired
	}
	if in.CoverImage == nil || in.File == nil {
		return domain.Book{}, ErrFilesRequired
	}
	if err := validatePDF(in.File.Path); err != nil {
		return domain.Book{}, err
	}

	cover, err := a.upload(ctx, in.CoverImage.Path, storage.UploadOptions{
		Folder:           coverFolder,
		ResourceType:     storage.ResourceImage,
		FilenameOverride: util.NewID(),
		Format:           imageFormat(in.CoverImage),
	})
	if err != nil {
		return domain.Book{}, err
	}
	file, err := a.upload(ctx, in.File.Path, storage.UploadOptions{
		Folder:           fileFolder,
		ResourceType:     storage.ResourceRaw,
		FilenameOverride: util.NewID(),
		Format:           "pdf",
	})
	if err != nil {
		a.destroyRef(ctx, &cover, storage.ResourceImage)
		return domain.Book{}, err
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:         util.NewID(),
		Title:      in.Title,
		Genre:      in.Genre,
		AuthorID:   user.ID,
		CoverImage: &cover,
		File:       &file,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.SaveBook(book); err != nil {
		a.destroyRef(ctx, &cover, storage.ResourceImage)
		a.destroyRef(ctx, &file, storage.ResourceRaw)
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}

	removeTempFile(logger, in.CoverImage.Path)
	removeTempFile(logger, in.File.Path)
	return book, nil
}

// UpdateBook replaces supplied fields on a book owned by user. Each replaced
// remote object's predecessor is destroyed best-effort after the replacement
// upload succeeded; a destroy failure is logged and never aborts the update.
// Unreplaced references keep their prior value. Last write wins.
func (a *App) UpdateBook(ctx context.Context, user domain.User, id string, in UpdateBookInput) (domain.Book, error) {
	logger := util.LoggerFromContext(ctx)
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	if book.AuthorID != user.ID {
		return domain.Book{}, ErrForbidden
	}
	if in.File != nil {
		if err := validatePDF(in.File.Path); err != nil {
			return domain.Book{}, err
		}
	}

	fields := store.BookUpdate{Title: in.Title, Genre: in.Genre}
	if in.CoverImage != nil {
		ref, err := a.upload(ctx, in.CoverImage.Path, storage.UploadOptions{
			Folder:           coverFolder,
			ResourceType:     storage.ResourceImage,
			FilenameOverride: util.NewID(),
			Format:           imageFormat(in.CoverImage),
		})
		if err != nil {
			return domain.Book{}, err
		}
		removeTempFile(logger, in.CoverImage.Path)
		fields.CoverImage = &ref
	}
	if in.File != nil {
		ref, err := a.upload(ctx, in.File.Path, storage.UploadOptions{
			Folder:           fileFolder,
			ResourceType:     storage.ResourceRaw,
			FilenameOverride: util.NewID(),
			Format:           "pdf",
		})
		if err != nil {
			a.destroyRef(ctx, fields.CoverImage, storage.ResourceImage)
			return domain.Book{}, err
		}
		removeTempFile(logger, in.File.Path)
		fields.File = &ref
	}

	if fields.CoverImage != nil {
		a.destroyRef(ctx, book.CoverImage, storage.ResourceImage)
	}
	if fields.File != nil {
		a.destroyRef(ctx, book.File, storage.ResourceRaw)
	}

	updated, ok, err := a.store.UpdateBook(id, fields)
	if err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return updated, nil
}

// DeleteBook removes a book owned by user. Both remote objects are destroyed
// best-effort first; the record itself must remain removable even when the
// media store is unavailable.
func (a *App) DeleteBook(ctx context.Context, user domain.User, id string) error {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return ErrBookNotFound
	}
	if book.AuthorID != user.ID {
		return ErrForbidden
	}
	a.destroyRef(ctx, book.CoverImage, storage.ResourceImage)
	a.destroyRef(ctx, book.File, storage.ResourceRaw)
	if err := a.store.DeleteBook(id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (a *App) GetBook(id string) (domain.Book, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

// ListBooks returns every book. Full-scan semantics, no pagination.
func (a *App) ListBooks() ([]domain.Book, error) {
	return a.store.ListBooks()
}

// upload runs one media-store upload under the configured per-call timeout.
func (a *App) upload(ctx context.Context, path string, opts storage.UploadOptions) (domain.ObjectRef, error) {
	uctx, cancel := context.WithTimeout(ctx, a.remoteTimeout)
	defer cancel()
	ref, err := a.media.Upload(uctx, path, opts)
	if err != nil {
		// Only a deadline counts as a timeout. A canceled parent context
		// means the caller abandoned the request, not that the store is slow.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(uctx.Err(), context.DeadlineExceeded) {
			return domain.ObjectRef{}, fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
		}
		return domain.ObjectRef{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return ref, nil
}

// destroyRef deletes a remote object best-effort. Failures are logged, never
// returned; callers rely on that to keep destroys non-fatal.
func (a *App) destroyRef(ctx context.Context, ref *domain.ObjectRef, resourceType storage.ResourceType) {
	if ref == nil || ref.ID == "" {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.remoteTimeout)
	defer cancel()
	if err := a.media.Destroy(dctx, ref.ID, resourceType); err != nil {
		util.LoggerFromContext(ctx).Warn("remote object not deleted",
			"object_id", ref.ID,
			"resource_type", string(resourceType),
			"err", fmt.Errorf("%w: %v", ErrRemoteDelete, err),
		)
	}
}

// removeTempFile unlinks one staged upload. A failure does not abort the
// request, but it is a disk-space leak and must show up in logs.
func removeTempFile(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("temp file not removed", "path", path, "err", err)
	}
}

// imageFormat derives the stored cover format from the declared MIME
// subtype, e.g. "image/png" -> "png", falling back to the file extension.
// Structured-syntax suffixes are dropped: "image/svg+xml" -> "svg".
func imageFormat(f *UploadedFile) string {
	if ct := strings.TrimSpace(f.ContentType); ct != "" {
		if idx := strings.LastIndex(ct, "/"); idx >= 0 && idx+1 < len(ct) {
			subtype, _, _ := strings.Cut(strings.ToLower(ct[idx+1:]), "+")
			return subtype
		}
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Filename)), ".")
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
