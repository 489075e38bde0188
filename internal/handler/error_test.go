package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xhaelri/qitchen/internal/domain"
)

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.EGONE, http.StatusGone},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{domain.ENOTIMPL, http.StatusNotImplemented},
		{domain.EGATEWAY, http.StatusBadGateway},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{"unknown_code", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := ErrorCodeToHTTPStatus(tt.code); got != tt.expected {
				t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.expected)
			}
		})
	}
}

type failureBody struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields"`
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) failureBody {
	t.Helper()
	var body failureBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "not found error",
			err:            domain.ErrOrderNotFound,
			expectedStatus: http.StatusNotFound,
			expectedCode:   domain.ENOTFOUND,
		},
		{
			name:           "policy error",
			err:            domain.ErrRefundWindowExpired,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   domain.EINVALID,
		},
		{
			name:           "slot taken",
			err:            domain.ErrSlotUnavailable,
			expectedStatus: http.StatusConflict,
			expectedCode:   domain.ECONFLICT,
		},
		{
			name:           "gateway failure",
			err:            domain.Gateway(nil, "payment.card.start", "Card was declined"),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   domain.EGATEWAY,
		},
		{
			name:           "gateway not configured",
			err:            domain.ErrGatewayNotConfigured,
			expectedStatus: http.StatusServiceUnavailable,
			expectedCode:   domain.EUNAVAILABLE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()

			ErrorResponse(rec, req, tt.err)

			if rec.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.expectedStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want %q", ct, "application/json")
			}

			body := decodeFailure(t, rec)
			if body.Success {
				t.Error("success = true, want false")
			}
			if body.Code != tt.expectedCode {
				t.Errorf("code = %q, want %q", body.Code, tt.expectedCode)
			}
			if body.Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestErrorResponse_InternalHidesDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	err := domain.Internal(nil, "db.query", "failed to connect to database at 192.168.1.100:5432")
	ErrorResponse(rec, req, err)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	body := decodeFailure(t, rec)
	expected := "An internal error occurred. Please try again later."
	if body.Message != expected {
		t.Errorf("message = %q, want %q", body.Message, expected)
	}
}

func TestValidationErrorResponse(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	err := domain.NewValidationError("order.create", "placeType", "is required")
	err = domain.AddFieldError(err, "paymentMethod", "is required")

	ValidationErrorResponse(rec, req, err)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	body := decodeFailure(t, rec)
	if body.Code != domain.EINVALID {
		t.Errorf("code = %q, want %q", body.Code, domain.EINVALID)
	}
	if len(body.Fields) != 2 {
		t.Errorf("fields count = %d, want 2", len(body.Fields))
	}
	if body.Fields["placeType"] != "is required" {
		t.Errorf("fields[placeType] = %q, want %q", body.Fields["placeType"], "is required")
	}
}

func TestErrorResponse_RoutesValidationErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	ErrorResponse(rec, req, domain.NewValidationError("cart.add", "quantity", "must be at least 1"))

	body := decodeFailure(t, rec)
	if body.Fields["quantity"] == "" {
		t.Errorf("fields = %v, want quantity entry", body.Fields)
	}
}

func TestValidationErrorResponse_NonValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	rec := httptest.NewRecorder()

	ValidationErrorResponse(rec, req, domain.ErrCartNotFound)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestConvenienceResponses(t *testing.T) {
	tests := []struct {
		name     string
		respond  func(w http.ResponseWriter, r *http.Request)
		expected int
	}{
		{"NotFoundResponse", NotFoundResponse, http.StatusNotFound},
		{"UnauthorizedResponse", UnauthorizedResponse, http.StatusUnauthorized},
		{"ForbiddenResponse", ForbiddenResponse, http.StatusForbidden},
		{"InternalErrorResponse", func(w http.ResponseWriter, r *http.Request) { InternalErrorResponse(w, r, nil) }, http.StatusInternalServerError},
		{"BadRequestResponse", func(w http.ResponseWriter, r *http.Request) { BadRequestResponse(w, r, "bad input") }, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()

			tt.respond(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("status = %d, want %d", rec.Code, tt.expected)
			}
		})
	}
}

type refundRequest struct {
	RefundAmount *string `json:"refundAmount" validate:"omitempty,min=1"`
	Reason       string  `json:"refundReason" validate:"max=10"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("empty body is allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", nil)
		var dst refundRequest
		if err := DecodeJSON(req, &dst); err != nil {
			t.Fatalf("DecodeJSON() error = %v", err)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("{"))
		var dst refundRequest
		err := DecodeJSON(req, &dst)
		if domain.ErrorCode(err) != domain.EINVALID {
			t.Errorf("code = %q, want %q", domain.ErrorCode(err), domain.EINVALID)
		}
	})

	t.Run("validation uses JSON names", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"refundReason":"far too long a reason"}`))
		var dst refundRequest
		err := DecodeJSON(req, &dst)
		fields := domain.GetValidationFields(err)
		if fields["refundReason"] != "must be at most 10" {
			t.Errorf("fields = %v, want refundReason entry", fields)
		}
	})
}

func TestPathUUID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
	req.SetPathValue("orderId", "nope")
	if _, err := PathUUID(req, "orderId"); !domain.IsValidationError(err) {
		t.Errorf("PathUUID() error = %v, want validation error", err)
	}

	req.SetPathValue("orderId", "6f1c0a8e-3c4b-4c1e-9a55-0d2b9f0f2c11")
	if _, err := PathUUID(req, "orderId"); err != nil {
		t.Errorf("PathUUID() error = %v", err)
	}
}
