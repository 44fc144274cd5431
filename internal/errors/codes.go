// Package errors provides structured error handling for voxrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal at open time)
//   - 2XX: Store errors (vector file, metadata database)
//   - 3XX: Not-found errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration errors, including a vector file
	// whose header does not match the requested dimension.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates persistence failures (mmap, bbolt).
	CategoryStore Category = "STORE"
	// CategoryNotFound indicates a missing document or chunk.
	CategoryNotFound Category = "NOT_FOUND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199). These fail at open time.
	ErrCodeConfigInvalid   = "ERR_101_CONFIG_INVALID"
	ErrCodeBadMagic        = "ERR_102_BAD_MAGIC"
	ErrCodeDimensionLocked = "ERR_103_DIMENSION_LOCKED"
	ErrCodeDataDirLocked   = "ERR_104_DATA_DIR_LOCKED"

	// Store errors (200-299)
	ErrCodeVectorAppend  = "ERR_201_VECTOR_APPEND"
	ErrCodeMmapFailed    = "ERR_202_MMAP_FAILED"
	ErrCodeMetadataWrite = "ERR_203_METADATA_WRITE"
	ErrCodeMetadataRead  = "ERR_204_METADATA_READ"

	// Not-found errors (300-399)
	ErrCodeDocumentNotFound = "ERR_301_DOCUMENT_NOT_FOUND"
	ErrCodeChunkNotFound    = "ERR_302_CHUNK_NOT_FOUND"
	ErrCodeVectorNotFound   = "ERR_303_VECTOR_NOT_FOUND"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_403_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode derives the category from the numeric range of a code.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryNotFound
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the severity from the category.
// Config errors are fatal: the operator must fix the environment.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryNotFound:
		return SeverityWarning
	default:
		return SeverityError
	}
}
