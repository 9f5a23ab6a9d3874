package app

import "errors"

var (
	// ErrAllFieldsRequired is returned by Register when name, email or
	// password is missing.
	ErrAllFieldsRequired = errors.New("all fields are required")

	// ErrInvalidCredentials covers both "user does not exist" and "password
	// mismatch". The message deliberately does not reveal which, to avoid
	// account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrEmailAlreadyExists = errors.New("user already exists with this email")

	ErrTitleAndGenreRequired = errors.New("title and genre are required")
	ErrFilesRequired         = errors.New("coverImage and file are required")
	ErrNotPDF                = errors.New("uploaded book file must be a PDF")

	ErrBookNotFound = errors.New("book not found")
	ErrForbidden    = errors.New("you can not modify another author's book")

	// ErrUploadFailed is the single generic error reported when either remote
	// upload fails; the response does not distinguish which upload broke.
	ErrUploadFailed = errors.New("error while uploading the files")

	// ErrRemoteDelete wraps media-store destroy failures. Destroys are
	// best-effort, so this error is logged rather than returned to clients.
	ErrRemoteDelete = errors.New("error while deleting remote object")

	// ErrRemoteTimeout marks a media-store call that exceeded its deadline.
	ErrRemoteTimeout = errors.New("media store call timed out")
)

// IsValidation reports whether err is a request-validation failure that
// should surface as 400.
func IsValidation(err error) bool {
	return errors.Is(err, ErrAllFieldsRequired) ||
		errors.Is(err, ErrTitleAndGenreRequired) ||
		errors.Is(err, ErrFilesRequired) ||
		errors.Is(err, ErrNotPDF)
}
