// Package errors provides structured error handling for amanindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (status records, index stores, lock files)
//   - 3XX: Concurrency and remote errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, store and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryConcurrency indicates lock contention and remote availability errors.
	CategoryConcurrency Category = "CONCURRENCY"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid      = "ERR_102_CONFIG_INVALID"
	ErrCodeCollectorNotFound  = "ERR_104_COLLECTOR_NOT_FOUND"
	ErrCodeProviderInvalid    = "ERR_105_PROVIDER_INVALID"
	ErrCodeDuplicateCollector = "ERR_106_DUPLICATE_COLLECTOR"

	// IO errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission   = "ERR_202_FILE_PERMISSION"
	ErrCodeStatusCorrupt    = "ERR_207_STATUS_CORRUPT"
	ErrCodeStoreWriteFailed = "ERR_208_STORE_WRITE_FAILED"
	ErrCodeLockFailed       = "ERR_209_LOCK_FAILED"

	// Concurrency and remote errors (300-399)
	ErrCodeIndexBusy         = "ERR_301_INDEX_BUSY"
	ErrCodeRemoteUnavailable = "ERR_302_REMOTE_UNAVAILABLE"
	ErrCodeBuildCancelled    = "ERR_303_BUILD_CANCELLED"
	ErrCodeStoreBusy         = "ERR_304_STORE_BUSY"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidScope = "ERR_402_INVALID_SCOPE"

	// Internal errors (500-599)
	ErrCodeInternal      = "ERR_501_INTERNAL"
	ErrCodeCollectFailed = "ERR_504_COLLECT_FAILED"
	ErrCodeIndexFailed   = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryConcurrency
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Busy indexes and flaky remotes are expected to clear up on their own
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexBusy, ErrCodeStoreBusy, ErrCodeRemoteUnavailable:
		return true
	default:
		return false
	}
}
