// Package errors provides standardized error handling for the search orchestrator.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Bad request: surfaced to the caller, never retried.
	ErrCodeMissingModuleForCategory ErrorCode = "MISSING_MODULE_FOR_CATEGORY"
	ErrCodeCategoryModuleMismatch   ErrorCode = "CATEGORY_MODULE_MISMATCH"
	ErrCodeMissingQueryText         ErrorCode = "MISSING_QUERY_TEXT"
	ErrCodeInvalidFilterFormat      ErrorCode = "INVALID_FILTER_FORMAT"
	ErrCodeUnknownModule            ErrorCode = "UNKNOWN_MODULE"

	// Upstream unavailable: recovered locally where possible.
	ErrCodeSearchEngineUnavailable ErrorCode = "SEARCH_ENGINE_UNAVAILABLE"
	ErrCodeSearchQueryFailed       ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout           ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeIndexNotFound           ErrorCode = "INDEX_NOT_FOUND"
	ErrCodeMetadataStoreFailed     ErrorCode = "METADATA_STORE_FAILED"
	ErrCodeCacheUnavailable        ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeNLUServiceFailed        ErrorCode = "NLU_SERVICE_FAILED"
	ErrCodeNLUServiceTimeout       ErrorCode = "NLU_SERVICE_TIMEOUT"
	ErrCodeVectorSearchFailed      ErrorCode = "VECTOR_SEARCH_FAILED"

	ErrCodeAllPathsFailed ErrorCode = "ALL_SEARCH_PATHS_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewMissingModuleForCategoryError: category ids are module-scoped, so a
// category filter without a module selector is a caller error.
func NewMissingModuleForCategoryError(categoryID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingModuleForCategory,
		Message:   "category filter requires a module selector",
		Details:   fmt.Sprintf("categoryId: %s", categoryID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCategoryModuleMismatchError creates a non-retryable pairing error.
func NewCategoryModuleMismatchError(categoryID, moduleID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCategoryModuleMismatch,
		Message:   "category does not belong to the stated module",
		Details:   fmt.Sprintf("categoryId: %s, moduleId: %s", categoryID, moduleID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingQueryTextError creates a non-retryable error for operations
// that require query text (suggest/autocomplete).
func NewMissingQueryTextError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingQueryText,
		Message:   "query text is required",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidFilterFormatError creates a non-retryable filter format error.
func NewInvalidFilterFormatError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidFilterFormat,
		Message:   "invalid filter format",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownModuleError creates a non-retryable module resolution error.
func NewUnknownModuleError(selector string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownModule,
		Message:   "module selector did not resolve to any module",
		Details:   fmt.Sprintf("selector: %s", selector),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchEngineUnavailableError creates a retryable connection error.
func NewSearchEngineUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchEngineUnavailable,
		Message:   "search engine connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchQueryFailedError creates a retryable search query error.
func NewSearchQueryFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "search query error",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSearchTimeoutError creates a retryable search timeout error.
func NewSearchTimeoutError(index string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchTimeout,
		Message:   "search query timeout",
		Details:   fmt.Sprintf("index: %s", index),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIndexNotFoundError creates a non-retryable index error.
func NewIndexNotFoundError(indexName string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIndexNotFound,
		Message:   "search index not found",
		Details:   fmt.Sprintf("indexName: %s", indexName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMetadataStoreFailedError creates a retryable relational store error.
func NewMetadataStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMetadataStoreFailed,
		Message:   "metadata store query error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache error. Callers degrade
// to a live query instead of failing the request.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "cache backend error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNLUServiceFailedError creates a retryable NLU error. The rule-based
// parser is the fallback.
func NewNLUServiceFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNLUServiceFailed,
		Message:   "NLU service error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNLUServiceTimeoutError creates a retryable NLU timeout error.
func NewNLUServiceTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeNLUServiceTimeout,
		Message:   "NLU service timeout",
		Details:   "API call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewVectorSearchFailedError creates a retryable vector search error.
// Callers degrade to keyword search.
func NewVectorSearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeVectorSearchFailed,
		Message:   "vector search error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAllPathsFailedError is the only upstream failure surfaced to callers:
// every query path for the request failed.
func NewAllPathsFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAllPathsFailed,
		Message:   "all search paths failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return &StandardError{
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("Resource not found in %s", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSearchEngineUnavailable,
		ErrCodeSearchQueryFailed,
		ErrCodeMetadataStoreFailed,
		ErrCodeNLUServiceFailed:
		return 3 // Retryable technical errors

	case ErrCodeSearchTimeout,
		ErrCodeNLUServiceTimeout:
		return 2 // Partial retry for timeouts

	case ErrCodeCacheUnavailable,
		ErrCodeVectorSearchFailed:
		return 1 // Degrade quickly, the fallback path is cheap

	default:
		return 0 // Bad-request errors: no retry
	}
}

// ==========================
// 4. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsBadRequest reports whether the code belongs to the caller-error class.
func IsBadRequest(code ErrorCode) bool {
	switch code {
	case ErrCodeMissingModuleForCategory,
		ErrCodeCategoryModuleMismatch,
		ErrCodeMissingQueryText,
		ErrCodeInvalidFilterFormat,
		ErrCodeUnknownModule:
		return true
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case IsBadRequest(code):
		return "BAD_REQUEST"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX") || strings.Contains(codeStr, "VECTOR"):
		return "SEARCH"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "METADATA"):
		return "DATABASE"
	case strings.Contains(codeStr, "NLU"):
		return "NLU"
	default:
		return "OTHER"
	}
}
