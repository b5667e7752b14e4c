package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13099: Submission errors
// 13100-13199: Archive errors
// 13200-13299: Scorer errors
// 13300-13399: Sandbox errors
// 13400-13499: Output errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008
	Canceled            ErrorCode = 10009

	// Database errors (10100-10199)
	DatabaseError  ErrorCode = 10100
	RecordNotFound ErrorCode = 10101

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Judge Pipeline Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound   ErrorCode = 13000
	SubmissionNotPending ErrorCode = 13001
	AlreadyJudging       ErrorCode = 13002
	JudgeSystemError     ErrorCode = 13003

	// Archive (13100-13199)
	ArchiveInvalid ErrorCode = 13100

	// Scorer (13200-13299)
	ScorerNotRegistered ErrorCode = 13200
	DuplicateScorer     ErrorCode = 13201

	// Sandbox (13300-13399)
	SandboxTimeout      ErrorCode = 13300
	SandboxRuntimeError ErrorCode = 13301
	SandboxUnavailable  ErrorCode = 13302

	// Output (13400-13499)
	OutputMissing   ErrorCode = 13400
	OutputMalformed ErrorCode = 13401
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",
	Canceled:            "Operation canceled",

	DatabaseError:  "Database operation failed",
	RecordNotFound: "Record not found in database",

	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	ValidationFailed: "Validation failed",

	SubmissionNotFound:   "Submission not found",
	SubmissionNotPending: "Submission has already been judged",
	AlreadyJudging:       "Submission is already being judged",
	JudgeSystemError:     "Judge system error",

	ArchiveInvalid: "Submission archive is invalid",

	ScorerNotRegistered: "No scorer is registered for this track",
	DuplicateScorer:     "Scorer is already registered",

	SandboxTimeout:      "Execution timed out",
	SandboxRuntimeError: "Execution failed",
	SandboxUnavailable:  "Sandbox is not available",

	OutputMissing:   "Output file is missing",
	OutputMalformed: "Output file is malformed",
}

// errorNames are the stable kind names recorded in judge result messages.
var errorNames = map[ErrorCode]string{
	InternalServerError:  "InternalError",
	DatabaseError:        "InternalError",
	CacheError:           "InternalError",
	JudgeSystemError:     "InternalError",
	ServiceUnavailable:   "InternalError",
	SandboxUnavailable:   "InternalError",
	Timeout:              "InternalError",
	Canceled:             "Canceled",
	SubmissionNotFound:   "SubmissionNotFound",
	SubmissionNotPending: "SubmissionNotPending",
	AlreadyJudging:       "AlreadyJudging",
	ArchiveInvalid:       "ArchiveInvalid",
	ScorerNotRegistered:  "ScorerNotRegistered",
	DuplicateScorer:      "DuplicateScorer",
	SandboxTimeout:       "SandboxTimeout",
	SandboxRuntimeError:  "SandboxRuntimeError",
	OutputMissing:        "OutputMissing",
	OutputMalformed:      "OutputMalformed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Name returns the judge error kind for the code.
// Codes without a dedicated kind are reported as InternalError.
func (c ErrorCode) Name() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return "InternalError"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == SubmissionNotFound, c == RecordNotFound, c == CacheMiss:
		return 404
	case c == AlreadyJudging, c == SubmissionNotPending:
		return 409
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams:
		return 400
	default:
		return 500
	}
}
