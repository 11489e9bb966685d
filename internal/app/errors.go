package app

import "errors"

// Kind classifies app errors so transports can map them to status codes.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindAuthorization
	KindNotFound
)

// Error is an app error safe to show to clients.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}
	return "INTERNAL"
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// invalid wraps a lower-level validation error, keeping it reachable via errors.Is.
func invalid(code string, err error) error {
	return &Error{Kind: KindValidation, Code: code, Msg: err.Error(), Err: err}
}

var (
	ErrSignupFieldsRequired = newError(KindValidation, "AUTH_FIELDS_REQUIRED", "Please provide name, email, and password")
	ErrLoginFieldsRequired  = newError(KindValidation, "AUTH_FIELDS_REQUIRED", "Please provide email and password")
	ErrInvalidEmail         = newError(KindValidation, "AUTH_INVALID_EMAIL", "Please provide a valid email address")
	ErrUserAlreadyExists    = newError(KindConflict, "AUTH_USER_EXISTS", "User already exists")

	// ErrInvalidCredentials covers unknown email and wrong password alike so
	// responses do not reveal which accounts exist.
	ErrInvalidCredentials = newError(KindAuthentication, "AUTH_INVALID_CREDENTIALS", "Invalid email or password")

	ErrNoToken       = newError(KindAuthentication, "AUTH_NO_TOKEN", "No token provided")
	ErrInvalidToken  = newError(KindAuthentication, "AUTH_INVALID_TOKEN", "Invalid or expired token")
	ErrUserNotFound  = newError(KindNotFound, "USER_NOT_FOUND", "User not found")
	ErrAdminRequired = newError(KindAuthorization, "AUTH_ADMIN_REQUIRED", "Admin access required")

	ErrTitleContentRequired = newError(KindValidation, "POST_FIELDS_REQUIRED", "Title and content are required")
	ErrPostNotFound         = newError(KindNotFound, "POST_NOT_FOUND", "Post not found")
	ErrImagesDisabled       = newError(KindValidation, "POST_IMAGES_DISABLED", "Image uploads are not configured")
	ErrUnsupportedImageType = newError(KindValidation, "POST_UNSUPPORTED_IMAGE_TYPE", "Unsupported image type (allowed: jpeg, png, gif, webp)")
	ErrImageTooLarge        = newError(KindValidation, "POST_IMAGE_TOO_LARGE", "Image too large")

	ErrCommentTextRequired = newError(KindValidation, "COMMENT_TEXT_REQUIRED", "Comment text is required")
	ErrCommentNotFound     = newError(KindNotFound, "COMMENT_NOT_FOUND", "Comment not found")
	ErrNotCommentAuthor    = newError(KindAuthorization, "COMMENT_FORBIDDEN", "Unauthorized to delete this comment")

	ErrContactFieldsRequired = newError(KindValidation, "CONTACT_FIELDS_REQUIRED", "Please provide all required fields")
	ErrMessageNotFound       = newError(KindNotFound, "CONTACT_NOT_FOUND", "Message not found")
)
