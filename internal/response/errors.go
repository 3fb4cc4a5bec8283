package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrIdentifierRequired ErrCode = "IDENTIFIER_REQUIRED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrAnnotatorAccessOnly ErrCode = "ANNOTATOR_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrUnknownExam         ErrCode = "UNKNOWN_EXAM"
	ErrNoImageAvailable    ErrCode = "NO_IMAGE_AVAILABLE"
	ErrExamCompleted       ErrCode = "EXAM_ALREADY_COMPLETED"
	ErrSessionActive       ErrCode = "ANOTHER_SESSION_ACTIVE"
	ErrNoActiveSession     ErrCode = "NO_ACTIVE_SESSION"
	ErrSessionClosing      ErrCode = "SESSION_ALREADY_CLOSING"
	ErrSubmitRequired      ErrCode = "SUBMIT_REQUIRED"
	ErrSubmissionFailed    ErrCode = "SUBMISSION_FAILED"
	ErrLastRow             ErrCode = "LAST_ROW"
	ErrImageRefImmutable   ErrCode = "IMAGE_REF_IMMUTABLE"
	ErrCompletionWrite     ErrCode = "COMPLETION_WRITE_FAILED"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrIdentifierRequired:
		return "An annotator identifier is required."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrAnnotatorAccessOnly:
		return "This resource is restricted to annotators."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrUnknownExam:
		return "This exam code is not in the catalog."
	case ErrNoImageAvailable:
		return "No document image is available for this exam right now."
	case ErrExamCompleted:
		return "You have already completed this exam."
	case ErrSessionActive:
		return "Another exam session is already in progress."
	case ErrNoActiveSession:
		return "There is no active exam session."
	case ErrSessionClosing:
		return "The session is already being closed."
	case ErrSubmitRequired:
		return "The annotations must be submitted before closing the session."
	case ErrSubmissionFailed:
		return "Saving your annotations failed. Your work is kept — please retry. If this persists, check your network connection."
	case ErrLastRow:
		return "The last remaining row cannot be deleted."
	case ErrImageRefImmutable:
		return "The image reference column is read-only."
	case ErrCompletionWrite:
		return "Your annotations were saved, but recording the completion failed. Bookkeeping may be incomplete."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "The file exceeds the size limit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
