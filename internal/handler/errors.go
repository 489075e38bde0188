package handler

import (
	"net/http"

	"github.com/xhaelri/qitchen/internal/domain"
	"github.com/xhaelri/qitchen/internal/middleware"
	"github.com/xhaelri/qitchen/internal/telemetry"
)

// errorBody is the failure envelope every endpoint returns.
type errorBody struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	return domain.HTTPStatus(code)
}

// ErrorResponse writes err as a JSON failure envelope. Server-side failures
// are logged with the request's logger and reported to Sentry; their details
// never reach the client.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsValidationError(err) {
		ValidationErrorResponse(w, r, err)
		return
	}

	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	logError(r, err, code, status)

	JSON(w, status, errorBody{
		Message: domain.ErrorMessage(err),
		Code:    code,
	})
}

// ValidationErrorResponse writes field-level validation failures. Any other
// error falls back to ErrorResponse.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	fields := domain.GetValidationFields(err)
	if fields == nil {
		ErrorResponse(w, r, err)
		return
	}
	logError(r, err, domain.EINVALID, http.StatusBadRequest)

	JSON(w, http.StatusBadRequest, errorBody{
		Message: "Validation failed",
		Code:    domain.EINVALID,
		Fields:  fields,
	})
}

func logError(r *http.Request, err error, code string, status int) {
	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", errString(err),
		"code", code,
		"op", domain.ErrorOp(err),
		"status", status,
	}
	if status >= 500 {
		logger.Error("request failed", attrs...)
		if err != nil {
			telemetry.CaptureErrorFromContext(r.Context(), err, map[string]interface{}{
				"code":   code,
				"path":   r.URL.Path,
				"method": r.Method,
			})
		}
		return
	}
	logger.Info("request rejected", attrs...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NotFoundResponse writes a 404 for an unknown resource.
func NotFoundResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found"))
}

// UnauthorizedResponse writes a 401.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required"))
}

// ForbiddenResponse writes a 403.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(w, r, domain.Errorf(domain.EFORBIDDEN, "", "You do not have permission to access this resource"))
}

// InternalErrorResponse writes a 500 and logs err.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ErrorResponse(w, r, domain.Internal(err, "", "internal error"))
}

// BadRequestResponse writes a 400 with message.
func BadRequestResponse(w http.ResponseWriter, r *http.Request, message string) {
	ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "", "%s", message))
}
