package apierrors

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

const (
	internalErrorMessage = "An unexpected error occurred"
	timestampLayout      = "2006-01-02T15:04:05.000Z07:00"
)

type ErrorEnvelope struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

type APIError struct {
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"statusCode"`
	Timestamp  string      `json:"timestamp"`
	RequestID  string      `json:"requestId,omitempty"`
}

type SuccessEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta describes one page of a paginated collection.
type Meta struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

func NewMeta(total, page, limit int) *Meta {
	return &Meta{
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasNext: limit > 0 && page*limit < total,
		HasPrev: page > 1,
	}
}

// ErrorResponse is the fully shaped reply for a failed request.
type ErrorResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       ErrorEnvelope
}

func SuccessResponse(data interface{}, meta *Meta) SuccessEnvelope {
	return SuccessEnvelope{
		Success: true,
		Data:    data,
		Meta:    meta,
	}
}

type Responder struct {
	logger types.Logger
	now    func() time.Time
}

type ResponderOption func(*Responder)

func WithClock(now func() time.Time) ResponderOption {
	return func(r *Responder) {
		r.now = now
	}
}

func NewResponder(logger types.Logger, opts ...ResponderOption) *Responder {
	r := &Responder{
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ErrorResponse maps any error to the error envelope. Unknown errors become
// INTERNAL_ERROR with a generic message; their detail only reaches the log.
func (r *Responder) ErrorResponse(err error, requestID string) *ErrorResponse {
	appErr := r.classify(err, requestID)

	response := &ErrorResponse{
		StatusCode: appErr.StatusCode,
		Headers:    make(map[string]string),
		Body: ErrorEnvelope{
			Success: false,
			Error: APIError{
				Code:       appErr.Code,
				Message:    appErr.Message,
				Details:    appErr.Details,
				StatusCode: appErr.StatusCode,
				Timestamp:  r.now().UTC().Format(timestampLayout),
				RequestID:  requestID,
			},
		},
	}

	if appErr.Code.IsSecurityRelevant() {
		r.logger.Security(appErr.Code.String(),
			zap.String("request_id", requestID),
			zap.String("message", appErr.Message),
			zap.Int("status_code", appErr.StatusCode),
		)
	}

	if appErr.Code == CodeRateLimitExceeded {
		if retryAfter, ok := retryAfterSeconds(appErr.Details); ok {
			response.Headers[utils.HeaderRetryAfter] = strconv.Itoa(retryAfter)
		}
	}

	return response
}

func (r *Responder) classify(err error, requestID string) *AppError {
	if err == nil {
		err = errors.New("nil error passed to error responder")
	}

	if appErr, ok := As(err); ok {
		if appErr.StatusCode >= http.StatusInternalServerError {
			r.logger.ErrorWithErrStack("Request failed", withStack(err),
				zap.String("request_id", requestID),
				zap.String("code", appErr.Code.String()),
			)
		}
		return appErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return NewValidationError("Validation failed", FormatValidationErrors(validationErrs))
	}

	r.logger.ErrorWithErrStack("Unhandled error", withStack(err),
		zap.String("request_id", requestID),
	)

	return NewAppError(CodeInternalError, internalErrorMessage, http.StatusInternalServerError, nil)
}

func (r *Responder) WriteError(ctx *fasthttp.RequestCtx, err error) {
	response := r.ErrorResponse(err, utils.RequestID(ctx))

	body, marshalErr := utils.Marshal(response.Body)
	if marshalErr != nil {
		r.logger.Error("Failed to encode error response", zap.Error(marshalErr))
		body = []byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"` + internalErrorMessage + `","statusCode":500}}`)
		response.StatusCode = http.StatusInternalServerError
	}

	for key, value := range response.Headers {
		ctx.Response.Header.Set(key, value)
	}

	utils.SetNoCacheHeaders(ctx)
	utils.WriteJSON(ctx, response.StatusCode, body)
}

func (r *Responder) WriteSuccess(ctx *fasthttp.RequestCtx, statusCode int, data interface{}, meta *Meta) error {
	body, err := utils.Marshal(SuccessResponse(data, meta))
	if err != nil {
		return NewInternalError(errors.Wrap(err, "encode success response"))
	}

	utils.WriteJSON(ctx, statusCode, body)
	return nil
}

func retryAfterSeconds(details interface{}) (int, bool) {
	values, ok := details.(map[string]interface{})
	if !ok {
		return 0, false
	}

	switch v := values["retryAfter"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func withStack(err error) error {
	var st stackTracer
	if errors.As(err, &st) {
		return err
	}
	return errors.WithStack(err)
}
