package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuth(t *testing.T) {
	const validToken = "test-token"

	handler := Auth(validToken, "/health", "/ws")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "health bypasses auth",
			path:       "/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "websocket bypasses auth",
			path:       "/ws",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing auth header",
			path:       "/tools",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Unauthorized\n",
		},
		{
			name:       "invalid auth format",
			path:       "/tools",
			authHeader: "Basic token",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid authorization header\n",
		},
		{
			name:       "scheme without credential",
			path:       "/tools",
			authHeader: "Bearer",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid authorization header\n",
		},
		{
			name:       "invalid token",
			path:       "/tools",
			authHeader: "Bearer wrong-token",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Invalid token\n",
		},
		{
			name:       "valid token",
			path:       "/tools",
			authHeader: "Bearer " + validToken,
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("got body %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestLogging_PassesStatus(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("got status %d, want %d", rec.Code, http.StatusTeapot)
	}
}
