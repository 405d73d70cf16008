package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	ErrMalformedCredential = errors.New("malformed api key")
	ErrIPNotAllowed        = errors.New("client ip is not allowed for this api key")
	ErrDomainNotAllowed    = errors.New("client domain is not allowed for this api key")
	ErrQuotaExceeded       = errors.New("monthly quota exceeded")
	ErrStoreUnavailable    = errors.New("backing store unavailable")
)
