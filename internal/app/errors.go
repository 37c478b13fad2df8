package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"stashboard/api/internal/auth"
	"stashboard/api/internal/authpw"
	"stashboard/api/internal/session"
	"stashboard/api/internal/stash"
)

// DomainError carries the HTTP status and machine-readable code for a
// failure the caller is expected to handle.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errUnauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

func errForbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func errInvalidInput(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_INPUT", message, nil)
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

func errStorageFailure(err error) *DomainError {
	return domainError(http.StatusInternalServerError, "STORAGE_FAILURE", "Storage operation failed", err.Error())
}

// mapStashError translates document-model sentinels into the error taxonomy
// the HTTP layer exposes. Unknown errors pass through untouched.
func mapStashError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stash.ErrPageNotFound):
		return errNotFound("Page not found")
	case errors.Is(err, stash.ErrCategoryNotFound):
		return errNotFound("Category not found")
	case errors.Is(err, stash.ErrPageExists):
		return errConflict("A page with that name already exists")
	case errors.Is(err, stash.ErrInvalidPageKey):
		return errInvalidInput("Page key may only contain letters, digits, '_', '-' and '.'")
	case errors.Is(err, stash.ErrTooManyCategories):
		return errInvalidInput("Too many categories for one page")
	case errors.Is(err, stash.ErrInvalidFormat):
		return domainError(http.StatusBadRequest, "INVALID_FORMAT", "Uploaded file is not valid JSON", nil)
	case errors.Is(err, stash.ErrInvalidStructure):
		return domainError(http.StatusUnprocessableEntity, "INVALID_STRUCTURE", "Document must be an object with a \"stashes\" object", nil)
	default:
		return err
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) ||
		errors.Is(err, session.ErrSessionNotFound) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil
	}
	if errors.Is(err, authpw.ErrEmailTaken) {
		return http.StatusConflict, "CONFLICT", "Email already registered", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
