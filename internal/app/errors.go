package app

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	codeValidation       = "VALIDATION_ERROR"
	codeUnauthorized     = "UNAUTHORIZED"
	codeForbidden        = "FORBIDDEN"
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeSlugTaken        = "SLUG_TAKEN"
	codePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	codeUpstream         = "UPSTREAM_ERROR"
	codePartialFailure   = "PARTIAL_FAILURE"
)

var (
	// ErrAssetUpload reports a failed blob write; no metadata was written.
	ErrAssetUpload = errors.New("asset upload failed")
	// ErrMetadataWrite reports a failed document write after the asset was stored.
	ErrMetadataWrite = errors.New("metadata write failed")
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	// Err is logged at the boundary, never returned to the client.
	Err error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusBadRequest, codeValidation, message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, codeNotFound, message, nil)
}

func forbiddenError() *DomainError {
	return domainError(http.StatusForbidden, codeForbidden, "Forbidden", nil)
}

func slugTakenError(slug string) *DomainError {
	return domainError(http.StatusConflict, codeSlugTaken, "An entry with this name already exists", map[string]any{"slug": slug})
}

// upstreamError hides cause from the client behind a generic message.
func upstreamError(message string, cause error) *DomainError {
	err := domainError(http.StatusInternalServerError, codeUpstream, message, nil)
	err.Err = cause
	return err
}

// partialFailureError reports an asset left behind after its metadata write failed
// and the compensating delete failed too.
func partialFailureError(kind, key string, cause error) *DomainError {
	err := domainError(http.StatusInternalServerError, codePartialFailure,
		"Entry was not saved and its uploaded asset could not be removed",
		map[string]any{"kind": kind, "orphanedAsset": key})
	err.Err = cause
	return err
}
