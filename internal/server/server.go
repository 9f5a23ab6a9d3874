package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"elibrary/internal/app"
	"elibrary/internal/ratelimit"
	"elibrary/internal/util"
	"elibrary/pkg/domain"
)

const defaultMaxUploadBytes = 30 * 1000 * 1000

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	FrontendDomain string
	UploadDir      string
	// MaxUploadBytes caps each uploaded file part, not the whole body.
	MaxUploadBytes int64

	RedisAddr      string
	RedisPassword  string
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// Server exposes the HTTP endpoints of the platform.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	frontendDomain  string
	uploadDir       string
	maxUploadBytes  int64
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. The upload directory is
// created if missing; register and login get per-IP fixed-window limiters.
func New(cfg Config) (*Server, error) {
	uploadDir := cfg.UploadDir
	if uploadDir == "" {
		uploadDir = "tmp/uploads"
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	authLimit := cfg.AuthRateLimit
	if authLimit <= 0 {
		authLimit = 10
	}
	authWindow := cfg.AuthRateWindow
	if authWindow <= 0 {
		authWindow = time.Minute
	}
	newLimiter := func(name string) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "elibrary:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, authLimit, authWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registerLimiter, err := newLimiter("register")
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login")
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		frontendDomain:  cfg.FrontendDomain,
		uploadDir:       uploadDir,
		maxUploadBytes:  maxUploadBytes,
		registerLimiter: registerLimiter,
		loginLimiter:    loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the shared middleware applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.frontendDomain, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// users
	s.mux.HandleFunc("/api/users/register", s.handleRegister)
	s.mux.HandleFunc("/api/users/login", s.handleLogin)

	// books
	s.mux.HandleFunc("/api/books", s.handleBooks)
	s.mux.HandleFunc("/api/books/", s.handleBookByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	}
}

// user handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many registration attempts, try again later") {
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	_, token, err := s.app.Register(req.Name, req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts, try again later") {
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	_, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token})
}

// book handlers
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListBooks()
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, books)
	case http.MethodPost:
		s.authenticated(s.handleCreateBook)(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	cover, file, ok := s.parseBookForm(w, r)
	if !ok {
		return
	}
	book, err := s.app.CreateBook(r.Context(), user, app.CreateBookInput{
		Title:      r.FormValue("title"),
		Genre:      r.FormValue("genre"),
		CoverImage: cover,
		File:       file,
	})
	if err != nil {
		discardStaged(r, cover, file)
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": book.ID})
}

func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		book, err := s.app.GetBook(id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, book)
	case http.MethodPatch:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			s.handleUpdateBook(w, r, user, id)
		})(w, r)
	case http.MethodDelete:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			if err := s.app.DeleteBook(r.Context(), user, id); err != nil {
				s.writeAppError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	cover, file, ok := s.parseBookForm(w, r)
	if !ok {
		return
	}
	in := app.UpdateBookInput{CoverImage: cover, File: file}
	if vals, present := r.MultipartForm.Value["title"]; present && len(vals) > 0 {
		in.Title = &vals[0]
	}
	if vals, present := r.MultipartForm.Value["genre"]; present && len(vals) > 0 {
		in.Genre = &vals[0]
	}
	book, err := s.app.UpdateBook(r.Context(), user, id, in)
	if err != nil {
		discardStaged(r, cover, file)
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

var errPartTooLarge = errors.New("exceeds the upload size limit")

// parseBookForm stages the coverImage and file parts, when present, into the
// upload directory. The size cap applies to each file part separately; the
// whole-body bound only guards against a runaway stream beyond both caps
// plus form overhead. It writes the error response itself and returns
// ok=false when the request is unusable.
func (s *Server) parseBookForm(w http.ResponseWriter, r *http.Request) (cover, file *app.UploadedFile, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*s.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "request body exceeds the upload limit")
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid form data")
		return nil, nil, false
	}
	cover, err := s.stageFile(r, "coverImage")
	if err != nil {
		writeStageError(w, err)
		return nil, nil, false
	}
	file, err = s.stageFile(r, "file")
	if err != nil {
		discardStaged(r, cover, nil)
		writeStageError(w, err)
		return nil, nil, false
	}
	return cover, file, true
}

// stageFile copies one multipart file part to local disk so the application
// layer can hand the object store a path, enforcing the per-file size cap.
// A missing part is not an error; the application decides whether the field
// was required.
func (s *Server) stageFile(r *http.Request, field string) (*app.UploadedFile, error) {
	part, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s part: %w", field, err)
	}
	defer part.Close()

	staged := filepath.Join(s.uploadDir, util.NewID()+filepath.Ext(header.Filename))
	dst, err := os.Create(staged)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", field, err)
	}
	written, err := io.Copy(dst, io.LimitReader(part, s.maxUploadBytes+1))
	if err != nil {
		dst.Close()
		os.Remove(staged)
		return nil, fmt.Errorf("stage %s: %w", field, err)
	}
	if written > s.maxUploadBytes {
		dst.Close()
		os.Remove(staged)
		return nil, fmt.Errorf("%s %w", field, errPartTooLarge)
	}
	if err := dst.Close(); err != nil {
		os.Remove(staged)
		return nil, fmt.Errorf("stage %s: %w", field, err)
	}
	return &app.UploadedFile{
		Path:        staged,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}

func writeStageError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPartTooLarge) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

// discardStaged removes staged temp files after a failed request. The
// application already removed whatever it consumed on success.
func discardStaged(r *http.Request, files ...*app.UploadedFile) {
	logger := util.LoggerFromContext(r.Context())
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove staged upload failed", "path", f.Path, "error", err)
		}
	}
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case app.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrBookNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrRemoteTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, app.ErrUploadFailed):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	slog.Warn("rate limit exceeded", "path", r.URL.Path, "ip", util.ClientIP(r))
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
