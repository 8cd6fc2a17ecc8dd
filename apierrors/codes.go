package apierrors

type ErrorCode string

const (
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeEmailNotVerified   ErrorCode = "EMAIL_NOT_VERIFIED"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	CodeTokenInvalid       ErrorCode = "TOKEN_INVALID"
)

const (
	CodeValidationFailed     ErrorCode = "VALIDATION_FAILED"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"
	CodeMissingRequiredField ErrorCode = "MISSING_REQUIRED_FIELD"
)

const (
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeConflict      ErrorCode = "CONFLICT"
)

const (
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

const (
	CodeFileTooLarge    ErrorCode = "FILE_TOO_LARGE"
	CodeInvalidFileType ErrorCode = "INVALID_FILE_TYPE"
	CodeUploadFailed    ErrorCode = "UPLOAD_FAILED"
)

const (
	CodeWeakPassword     ErrorCode = "WEAK_PASSWORD"
	CodePasswordMismatch ErrorCode = "PASSWORD_MISMATCH"
	CodeTOTPInvalid      ErrorCode = "TOTP_INVALID"
	CodeTOTPRequired     ErrorCode = "TOTP_REQUIRED"
)

const (
	CodeEmailSendFailed      ErrorCode = "EMAIL_SEND_FAILED"
	CodeEmailAlreadyVerified ErrorCode = "EMAIL_ALREADY_VERIFIED"
)

const (
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

func (c ErrorCode) String() string {
	return string(c)
}

// IsSecurityRelevant reports whether responses carrying this code are also
// written to the security log.
func (c ErrorCode) IsSecurityRelevant() bool {
	switch c {
	case CodeUnauthorized, CodeForbidden, CodeInvalidCredentials, CodeRateLimitExceeded:
		return true
	default:
		return false
	}
}
