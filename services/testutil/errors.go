package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	ErrorCodeInvalidRequest          = "INVALID_REQUEST"
	ErrorCodeNotFound                = "NOT_FOUND"
	ErrorCodeInvalidState            = "INVALID_STATE"
	ErrorCodeConflict                = "CONFLICT"
	ErrorCodeCreditLimitExceeded     = "CREDIT_LIMIT_EXCEEDED"
	ErrorCodeInsufficientInventory   = "INSUFFICIENT_INVENTORY"
	ErrorCodeExceedsRemainingBalance = "EXCEEDS_REMAINING_BALANCE"
	ErrorCodeRateLimited             = "RATE_LIMITED"
	ErrorCodeInternalError           = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func AssertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	if resp.Code != getHTTPStatusForErrorCode(expectedCode) {
		t.Fatalf("expected status %d, got %d (body %s)", getHTTPStatusForErrorCode(expectedCode), resp.Code, resp.Body.String())
	}

	var errResp errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}

	if errResp.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q", expectedCode, errResp.Code)
	}
}

func AssertHTTPStatus(t *testing.T, resp *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()
	if resp.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d (body %s)", expectedStatus, resp.Code, resp.Body.String())
	}
}

func getHTTPStatusForErrorCode(code string) int {
	switch code {
	case ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeInvalidState, ErrorCodeConflict:
		return http.StatusConflict
	case ErrorCodeCreditLimitExceeded, ErrorCodeInsufficientInventory, ErrorCodeExceedsRemainingBalance:
		return http.StatusUnprocessableEntity
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
