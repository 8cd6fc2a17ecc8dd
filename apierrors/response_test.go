package apierrors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/utils"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func newTestResponder() (*Responder, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewResponder(logger.NewZapWrapper(zap.New(core)), WithClock(func() time.Time { return fixedNow })), logs
}

func TestErrorResponse_TypedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
		wantMsg    string
	}{
		{name: "not found", err: NewNotFoundError("X"), wantStatus: 404, wantCode: CodeNotFound, wantMsg: "X"},
		{name: "validation", err: NewValidationError("bad input", nil), wantStatus: 400, wantCode: CodeValidationFailed, wantMsg: "bad input"},
		{name: "authentication", err: NewAuthenticationError(""), wantStatus: 401, wantCode: CodeUnauthorized, wantMsg: "Authentication required"},
		{name: "authorization", err: NewAuthorizationError("no"), wantStatus: 403, wantCode: CodeForbidden, wantMsg: "no"},
		{name: "conflict", err: NewConflictError("taken"), wantStatus: 409, wantCode: CodeConflict, wantMsg: "taken"},
		{name: "file upload", err: NewFileUploadError("too big", CodeFileTooLarge), wantStatus: 400, wantCode: CodeFileTooLarge, wantMsg: "too big"},
		{name: "wrapped app error", err: fmt.Errorf("handler: %w", NewNotFoundError("snippet")), wantStatus: 404, wantCode: CodeNotFound, wantMsg: "snippet"},
		{
			name:       "custom app error",
			err:        NewAppError(CodeEmailNotVerified, "verify first", http.StatusForbidden, nil),
			wantStatus: 403,
			wantCode:   CodeEmailNotVerified,
			wantMsg:    "verify first",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestResponder()

			resp := r.ErrorResponse(tt.err, "req-1")

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.False(t, resp.Body.Success)
			assert.Equal(t, tt.wantCode, resp.Body.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Body.Error.Message)
			assert.Equal(t, tt.wantStatus, resp.Body.Error.StatusCode)
			assert.Equal(t, "req-1", resp.Body.Error.RequestID)
			assert.Equal(t, "2024-03-01T12:30:00.000Z", resp.Body.Error.Timestamp)
		})
	}
}

func TestErrorResponse_UnknownErrorIsInternal(t *testing.T) {
	r, logs := newTestResponder()

	resp := r.ErrorResponse(fmt.Errorf("pq: connection refused to 10.0.0.5"), "req-2")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, CodeInternalError, resp.Body.Error.Code)
	assert.Equal(t, "An unexpected error occurred", resp.Body.Error.Message)
	assert.Nil(t, resp.Body.Error.Details)

	entries := logs.FilterMessage("Unhandled error").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "connection refused")
	assert.NotEmpty(t, entries[0].ContextMap()["stack"])
}

func TestErrorResponse_ValidationErrors(t *testing.T) {
	type payload struct {
		Title string `json:"title" validate:"required"`
		Code  string `json:"code" validate:"required,min=3"`
	}

	err := NewValidator().Struct(payload{Code: "x"})
	require.Error(t, err)

	r, _ := newTestResponder()
	resp := r.ErrorResponse(err, "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeValidationFailed, resp.Body.Error.Code)

	details, ok := resp.Body.Error.Details.([]FieldError)
	require.True(t, ok)
	require.Len(t, details, 2)
	assert.Equal(t, FieldError{Field: "title", Message: "title is required", Tag: "required"}, details[0])
	assert.Equal(t, FieldError{Field: "code", Message: "code must be at least 3 characters", Tag: "min"}, details[1])
}

func TestErrorResponse_SecurityEvents(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		security bool
	}{
		{name: "unauthorized", err: NewAuthenticationError(""), security: true},
		{name: "forbidden", err: NewAuthorizationError(""), security: true},
		{name: "invalid credentials", err: NewAppError(CodeInvalidCredentials, "bad login", 401, nil), security: true},
		{name: "rate limited", err: NewRateLimitError(time.Second), security: true},
		{name: "not found", err: NewNotFoundError(""), security: false},
		{name: "email not verified", err: NewAppError(CodeEmailNotVerified, "", 403, nil), security: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, logs := newTestResponder()

			r.ErrorResponse(tt.err, "req")

			events := logs.FilterField(zap.String("security_event", string(mustAppError(t, tt.err).Code))).Len()
			if tt.security {
				assert.Equal(t, 1, events)
			} else {
				assert.Equal(t, 0, events)
			}
		})
	}
}

func TestErrorResponse_RetryAfterHeader(t *testing.T) {
	r, _ := newTestResponder()

	resp := r.ErrorResponse(NewRateLimitError(1500*time.Millisecond), "")

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Headers["Retry-After"])
	assert.Equal(t, map[string]interface{}{"retryAfter": 2}, resp.Body.Error.Details)
}

func TestErrorResponse_InternalAppErrorHidesCause(t *testing.T) {
	r, logs := newTestResponder()

	resp := r.ErrorResponse(NewDatabaseError(fmt.Errorf("duplicate key idx_users")), "req")

	assert.Equal(t, CodeDatabaseError, resp.Body.Error.Code)
	assert.Equal(t, "Database operation failed", resp.Body.Error.Message)
	assert.Equal(t, 1, logs.FilterMessage("Request failed").Len())
}

func TestWriteError(t *testing.T) {
	r, _ := newTestResponder()

	ctx := &fasthttp.RequestCtx{}
	ctx.SetUserValue(utils.HeaderRequestID, "abc")

	r.WriteError(ctx, NewRateLimitError(30*time.Second))

	assert.Equal(t, http.StatusTooManyRequests, ctx.Response.StatusCode())
	assert.Equal(t, "30", string(ctx.Response.Header.Peek("Retry-After")))
	assert.Equal(t, "application/json; charset=utf-8", string(ctx.Response.Header.ContentType()))

	var body ErrorEnvelope
	require.NoError(t, sonic.Unmarshal(ctx.Response.Body(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, CodeRateLimitExceeded, body.Error.Code)
	assert.Equal(t, "abc", body.Error.RequestID)
	assert.Equal(t, 429, body.Error.StatusCode)
}

func TestSuccessResponse_RoundTrip(t *testing.T) {
	data := map[string]interface{}{"name": "A", "tags": []interface{}{"go", "cache"}}
	meta := NewMeta(45, 2, 20)

	encoded, err := utils.Marshal(SuccessResponse(data, meta))
	require.NoError(t, err)

	var decoded SuccessEnvelope
	require.NoError(t, sonic.Unmarshal(encoded, &decoded))

	assert.True(t, decoded.Success)
	assert.Equal(t, data, decoded.Data)
	assert.Equal(t, meta, decoded.Meta)
}

func TestSuccessResponse_OmitsEmptyMeta(t *testing.T) {
	encoded, err := utils.Marshal(SuccessResponse([]int{1}, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":[1]}`, string(encoded))
}

func TestNewMeta(t *testing.T) {
	tests := []struct {
		total, page, limit int
		hasNext, hasPrev   bool
	}{
		{total: 45, page: 1, limit: 20, hasNext: true, hasPrev: false},
		{total: 45, page: 3, limit: 20, hasNext: false, hasPrev: true},
		{total: 40, page: 2, limit: 20, hasNext: false, hasPrev: true},
		{total: 0, page: 1, limit: 20, hasNext: false, hasPrev: false},
	}

	for _, tt := range tests {
		meta := NewMeta(tt.total, tt.page, tt.limit)
		assert.Equal(t, tt.hasNext, meta.HasNext, "total=%d page=%d", tt.total, tt.page)
		assert.Equal(t, tt.hasPrev, meta.HasPrev, "total=%d page=%d", tt.total, tt.page)
	}
}

func mustAppError(t *testing.T, err error) *AppError {
	t.Helper()
	appErr, ok := As(err)
	require.True(t, ok)
	return appErr
}
