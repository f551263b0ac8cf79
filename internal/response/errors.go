package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Attempt flow ──────────────────────────────────────────────────
	// QuizUnavailable and QuotaExceeded are policy errors: the caller did
	// nothing malformed, the quiz simply refuses a new attempt right now.
	ErrQuizUnavailable ErrCode = "QUIZ_UNAVAILABLE"
	ErrQuotaExceeded   ErrCode = "ATTEMPT_QUOTA_EXCEEDED"
	// AttemptExpired and AlreadyCompleted are steady-state signals, not
	// failures; clients branch on them and redirect to results.
	ErrAttemptExpired      ErrCode = "ATTEMPT_EXPIRED"
	ErrAlreadyCompleted    ErrCode = "ATTEMPT_ALREADY_COMPLETED"
	ErrAttemptNotCompleted ErrCode = "ATTEMPT_NOT_COMPLETED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrEmailTaken:
		return "An account with this email already exists."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."

	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	case ErrNotFound:
		return "Resource not found."

	case ErrQuizUnavailable:
		return "This quiz is not available for attempts right now."
	case ErrQuotaExceeded:
		return "You have used all allowed attempts for this quiz."
	case ErrAttemptExpired:
		return "Time is up. This attempt has been submitted automatically."
	case ErrAlreadyCompleted:
		return "This attempt is already completed."
	case ErrAttemptNotCompleted:
		return "This attempt has not been completed yet."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
