package errors

import (
	"net/http"
	"testing"
)

func TestFromBackend_KnownMessages(t *testing.T) {
	testCases := []struct {
		name       string
		raw        string
		status     int
		wantCode   Code
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "invalid credentials",
			raw:        "Invalid login credentials",
			status:     400,
			wantCode:   CodeUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Incorrect email or password.",
		},
		{
			name:       "already registered",
			raw:        "User already registered",
			status:     422,
			wantCode:   CodeConflict,
			wantStatus: http.StatusConflict,
			wantMsg:    "An account with this email already exists.",
		},
		{
			name:       "weak password",
			raw:        "Password should be at least 6 characters",
			status:     422,
			wantCode:   CodeInvalidRequest,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Password must be at least 6 characters long.",
		},
		{
			name:       "auth rate limit",
			raw:        "For security purposes, you can only request this after 60 seconds",
			status:     429,
			wantCode:   CodeRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantMsg:    "Too many attempts. Please wait a moment and try again.",
		},
		{
			name:       "rls violation",
			raw:        "new row violates row-level security policy for table \"products\"",
			status:     403,
			wantCode:   CodeForbidden,
			wantStatus: http.StatusForbidden,
			wantMsg:    "You do not have permission to do that.",
		},
		{
			name:       "duplicate key",
			raw:        "duplicate key value violates unique constraint \"reviews_product_reviewer_key\"",
			status:     409,
			wantCode:   CodeConflict,
			wantStatus: http.StatusConflict,
			wantMsg:    "That record already exists.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FromBackend(tc.status, tc.raw)
			if got.Code != tc.wantCode {
				t.Errorf("Code = %s, want %s", got.Code, tc.wantCode)
			}
			if got.HTTPStatus != tc.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", got.HTTPStatus, tc.wantStatus)
			}
			if got.Message != tc.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tc.wantMsg)
			}
			if got.Details["backend_message"] != tc.raw {
				t.Errorf("backend_message detail = %v, want %q", got.Details["backend_message"], tc.raw)
			}
		})
	}
}

func TestFromBackend_Fallbacks(t *testing.T) {
	if got := FromBackend(http.StatusNotFound, ""); got.Code != CodeNotFound {
		t.Errorf("404 Code = %s, want %s", got.Code, CodeNotFound)
	}

	got := FromBackend(http.StatusInternalServerError, "unexpected")
	if got.Code != CodeBackendError {
		t.Errorf("500 Code = %s, want %s", got.Code, CodeBackendError)
	}
	if got.HTTPStatus != http.StatusBadGateway {
		t.Errorf("500 HTTPStatus = %d, want %d", got.HTTPStatus, http.StatusBadGateway)
	}
	if got.Message != "Something went wrong. Please try again." {
		t.Errorf("500 Message = %q", got.Message)
	}
}

func TestGetServiceError(t *testing.T) {
	err := Validation("title is required")
	if se := GetServiceError(err); se == nil || se.Code != CodeInvalidRequest {
		t.Fatalf("GetServiceError() = %v", se)
	}
	if se := GetServiceError(nil); se != nil {
		t.Errorf("GetServiceError(nil) = %v, want nil", se)
	}
}

func TestWithDetails(t *testing.T) {
	err := NotFound("product").WithDetails("id", "p-1")
	if err.Details["id"] != "p-1" {
		t.Errorf("Details = %v", err.Details)
	}
	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d", err.HTTPStatus)
	}
}
