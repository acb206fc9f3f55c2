package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	ErrCodeInternal        ErrorCode = "COMMON_001"
	ErrCodeInvalidInput    ErrorCode = "COMMON_002"
	ErrCodeNotFound        ErrorCode = "COMMON_003"
	ErrCodeTimeout         ErrorCode = "COMMON_004"
	ErrCodeSerialization   ErrorCode = "COMMON_005"
	ErrCodeExternalService ErrorCode = "COMMON_006"
	ErrCodeCacheError      ErrorCode = "COMMON_007"
	ErrCodeUnknown         ErrorCode = "COMMON_999"
)

// Resolution and normalization error codes.
const (
	ErrCodeUnresolved            ErrorCode = "RES_001"
	ErrCodeResolverUnavailable   ErrorCode = "RES_002"
	ErrCodeNormalizationFailed   ErrorCode = "NRM_001"
	ErrCodeNormalizerUnavailable ErrorCode = "NRM_002"
)

// Aggregation and merge error codes.
const (
	ErrCodeSchemaError ErrorCode = "AGG_001"
	ErrCodeEmptyInput  ErrorCode = "MRG_001"
)

// LLM boundary error codes.
const (
	ErrCodeSplitFailed  ErrorCode = "LLM_001"
	ErrCodeTagMalformed ErrorCode = "LLM_002"
	ErrCodeLLMBackend   ErrorCode = "LLM_003"
)

// Enrichment error codes.
const (
	ErrCodeATCLookupFailed    ErrorCode = "ENR_001"
	ErrCodeSMILESLookupFailed ErrorCode = "ENR_002"
)

// Source preprocessing error codes.
const (
	ErrCodeSourceParse ErrorCode = "SRC_001"
	ErrCodeDateParse   ErrorCode = "SRC_002"
)

// Snapshot and infrastructure error codes.
const (
	ErrCodeSnapshotStore   ErrorCode = "SNAP_001"
	ErrCodeSnapshotMissing ErrorCode = "SNAP_002"
	ErrCodeDatabaseError   ErrorCode = "SNAP_003"
	ErrCodePublishFailed   ErrorCode = "MSG_001"
	ErrCodeArchiveFailed   ErrorCode = "STO_001"
)

// CodeOK is the sentinel returned by GetCode for a nil error.
const CodeOK = ErrorCode("OK")

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:        "internal error",
	ErrCodeInvalidInput:    "invalid input",
	ErrCodeNotFound:        "not found",
	ErrCodeTimeout:         "operation timed out",
	ErrCodeSerialization:   "serialization failed",
	ErrCodeExternalService: "external service error",
	ErrCodeCacheError:      "cache error",

	ErrCodeUnresolved:            "name resolution exhausted its retry budget",
	ErrCodeResolverUnavailable:   "name resolution service unavailable",
	ErrCodeNormalizationFailed:   "node normalization exhausted its retry budget",
	ErrCodeNormalizerUnavailable: "node normalization service unavailable",

	ErrCodeSchemaError: "required column missing from table schema",
	ErrCodeEmptyInput:  "merge called with zero tables",

	ErrCodeSplitFailed:  "combination split failed",
	ErrCodeTagMalformed: "tag response missing or malformed",
	ErrCodeLLMBackend:   "language model backend error",

	ErrCodeATCLookupFailed:    "ATC code lookup failed",
	ErrCodeSMILESLookupFailed: "SMILES lookup failed",

	ErrCodeSourceParse: "failed to parse source registry data",
	ErrCodeDateParse:   "unrecognized approval date format",

	ErrCodeSnapshotStore:   "snapshot store error",
	ErrCodeSnapshotMissing: "no previous snapshot available",
	ErrCodeDatabaseError:   "database error",
	ErrCodePublishFailed:   "failed to publish drift event",
	ErrCodeArchiveFailed:   "failed to archive export",
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsRowLevel reports whether the code describes a per-row failure that the
// pipeline recovers from with a sentinel value, as opposed to a fatal stage
// precondition. Schema and empty-input failures are never row-level.
func IsRowLevel(code ErrorCode) bool {
	switch code {
	case ErrCodeUnresolved, ErrCodeNormalizationFailed, ErrCodeSplitFailed,
		ErrCodeTagMalformed, ErrCodeATCLookupFailed, ErrCodeSMILESLookupFailed,
		ErrCodeInvalidInput:
		return true
	}
	return false
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
